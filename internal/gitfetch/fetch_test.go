package gitfetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

func testProjId(b byte) netcore.ProjId {
	var id netcore.ProjId
	id[0] = b
	return id
}

func createBareUpstream(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "upstream.git")
	if _, err := git.PlainInit(dir, true); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	return dir
}

func TestFetch_ClonesOnFirstFetch(t *testing.T) {
	upstream := createBareUpstream(t)
	root := t.TempDir()
	proj := testProjId(1)

	f := New(root)
	result := f.Fetch(context.Background(), upstream, proj)

	if !result.Ok {
		t.Fatalf("expected fetch to succeed, got Err=%q", result.Err)
	}
	if result.Proj != proj {
		t.Errorf("result.Proj = %v, want %v", result.Proj, proj)
	}
	if _, err := os.Stat(f.repoPath(proj)); err != nil {
		t.Errorf("expected bare repo at %s: %v", f.repoPath(proj), err)
	}
}

func TestFetch_ReusesExistingClone(t *testing.T) {
	upstream := createBareUpstream(t)
	root := t.TempDir()
	proj := testProjId(2)

	f := New(root)
	first := f.Fetch(context.Background(), upstream, proj)
	if !first.Ok {
		t.Fatalf("first fetch failed: %s", first.Err)
	}

	second := f.Fetch(context.Background(), upstream, proj)
	if !second.Ok {
		t.Fatalf("second fetch failed: %s", second.Err)
	}
}

func TestFetch_InvalidURLFails(t *testing.T) {
	root := t.TempDir()
	proj := testProjId(3)

	f := New(root)
	result := f.Fetch(context.Background(), "/nonexistent/path/to/repo.git", proj)

	if result.Ok {
		t.Error("expected fetch of a nonexistent repo to fail")
	}
	if result.Err == "" {
		t.Error("expected a non-empty error message")
	}
	if _, err := os.Stat(f.repoPath(proj)); !os.IsNotExist(err) {
		t.Error("expected failed clone to leave no partial repo directory behind")
	}
}

func TestRepoPath_KeyedByProjId(t *testing.T) {
	f := New("/tmp/repos")
	a := f.repoPath(testProjId(1))
	b := f.repoPath(testProjId(2))
	if a == b {
		t.Error("expected distinct projects to map to distinct repo paths")
	}
}
