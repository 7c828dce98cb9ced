package main

import (
	"bytes"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

func genTestPeerIDStr(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	var id netcore.PeerId
	copy(id[:], pub)
	return id.String()
}

func TestDoAuthAdd_WritesPeerToFile(t *testing.T) {
	dir := t.TempDir()
	akPath := filepath.Join(dir, "authorized_keys")
	peerIDStr := genTestPeerIDStr(t)

	var stdout bytes.Buffer
	if err := doAuthAdd([]string{peerIDStr, "--file", akPath, "--comment", "laptop"}, &stdout); err != nil {
		t.Fatalf("doAuthAdd: %v", err)
	}

	data, err := os.ReadFile(akPath)
	if err != nil {
		t.Fatalf("read authorized_keys: %v", err)
	}
	if !strings.Contains(string(data), peerIDStr) {
		t.Error("authorized_keys missing added peer")
	}
	if !strings.Contains(string(data), "laptop") {
		t.Error("authorized_keys missing comment")
	}
}

func TestDoAuthAdd_RejectsInvalidPeerID(t *testing.T) {
	dir := t.TempDir()
	akPath := filepath.Join(dir, "authorized_keys")

	err := doAuthAdd([]string{"not-a-peer-id", "--file", akPath}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for invalid peer ID")
	}
}

func TestDoAuthList_EmptyFileMeansOpenNetwork(t *testing.T) {
	dir := t.TempDir()
	akPath := filepath.Join(dir, "authorized_keys")
	if err := os.WriteFile(akPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := doAuthList([]string{"--file", akPath}, &stdout); err != nil {
		t.Fatalf("doAuthList: %v", err)
	}
	if !strings.Contains(stdout.String(), "Every peer is admitted") {
		t.Error("expected open-network message for empty authorized_keys")
	}
}

func TestDoAuthList_ShowsAddedPeers(t *testing.T) {
	dir := t.TempDir()
	akPath := filepath.Join(dir, "authorized_keys")
	peerIDStr := genTestPeerIDStr(t)
	if err := doAuthAdd([]string{peerIDStr, "--file", akPath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("doAuthAdd: %v", err)
	}

	var stdout bytes.Buffer
	if err := doAuthList([]string{"--file", akPath}, &stdout); err != nil {
		t.Fatalf("doAuthList: %v", err)
	}
	if !strings.Contains(stdout.String(), peerIDStr) {
		t.Error("doAuthList output missing added peer")
	}
}

func TestDoAuthRemove_RemovesPeer(t *testing.T) {
	dir := t.TempDir()
	akPath := filepath.Join(dir, "authorized_keys")
	peerIDStr := genTestPeerIDStr(t)
	if err := doAuthAdd([]string{peerIDStr, "--file", akPath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("doAuthAdd: %v", err)
	}

	if err := doAuthRemove([]string{peerIDStr, "--file", akPath}, &bytes.Buffer{}); err != nil {
		t.Fatalf("doAuthRemove: %v", err)
	}

	data, err := os.ReadFile(akPath)
	if err != nil {
		t.Fatalf("read authorized_keys: %v", err)
	}
	if strings.Contains(string(data), peerIDStr) {
		t.Error("authorized_keys should no longer contain removed peer")
	}
}

func TestResolveAuthKeysPath_FileFlagWins(t *testing.T) {
	path, err := resolveAuthKeysPath("/explicit/path", "")
	if err != nil {
		t.Fatalf("resolveAuthKeysPath: %v", err)
	}
	if path != "/explicit/path" {
		t.Errorf("path = %q, want explicit override", path)
	}
}

func TestResolveAuthKeysPath_FromConfig(t *testing.T) {
	dir := t.TempDir()
	var initOut bytes.Buffer
	if err := doInit([]string{"--dir", dir}, strings.NewReader("\n"), &initOut); err != nil {
		t.Fatalf("doInit: %v", err)
	}

	path, err := resolveAuthKeysPath("", filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("resolveAuthKeysPath: %v", err)
	}
	if path != filepath.Join(dir, "authorized_keys") {
		t.Errorf("path = %q, want config-resolved authorized_keys", path)
	}
}
