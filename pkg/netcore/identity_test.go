package netcore

import (
	"bytes"
	"testing"

	"github.com/multiformats/go-multibase"
)

func TestPeerIdRoundTrip(t *testing.T) {
	signer := newMockSigner(1)
	id := signer.Id()

	s := id.String()
	got, err := ParsePeerId(s)
	if err != nil {
		t.Fatalf("ParsePeerId(%q): %v", s, err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %x, want %x", got, id)
	}
}

func TestParsePeerIdRejectsWrongLength(t *testing.T) {
	short, err := multibase.Encode(multibase.Base58BTC, make([]byte, 10))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParsePeerId(short); err == nil {
		t.Fatal("expected error for short-length peer id")
	}
}

func TestOidHexRoundTrip(t *testing.T) {
	var oid Oid
	for i := range oid {
		oid[i] = byte(i)
	}
	s := oid.String()
	got, err := ParseOid(s)
	if err != nil {
		t.Fatalf("ParseOid(%q): %v", s, err)
	}
	if got != oid {
		t.Fatalf("round trip mismatch: got %x, want %x", got, oid)
	}
}

func TestParseOidRejectsBadLength(t *testing.T) {
	if _, err := ParseOid("deadbeef"); err == nil {
		t.Fatal("expected error for short oid")
	}
}

func TestNewRefNameRejectsInvalid(t *testing.T) {
	cases := []string{"", "/heads/main", "heads/main/", "heads//main", "heads/./main", "heads/../main", "heads main"}
	for _, c := range cases {
		if _, err := NewRefName(c); err == nil {
			t.Errorf("NewRefName(%q): expected error, got nil", c)
		}
	}
	if _, err := NewRefName("heads/main"); err != nil {
		t.Errorf("NewRefName(%q): unexpected error %v", "heads/main", err)
	}
}

func TestParseRemoteRef(t *testing.T) {
	signer := newMockSigner(2)
	id := signer.Id()
	s := "refs/remotes/" + id.String() + "/heads/main"

	gotId, gotName, err := ParseRemoteRef(s)
	if err != nil {
		t.Fatalf("ParseRemoteRef(%q): %v", s, err)
	}
	if gotId != id {
		t.Fatalf("got id %x, want %x", gotId, id)
	}
	if gotName != "heads/main" {
		t.Fatalf("got ref name %q, want heads/main", gotName)
	}
}

func TestParseRemoteRefRejectsMissingPrefix(t *testing.T) {
	if _, _, err := ParseRemoteRef("heads/main"); err == nil {
		t.Fatal("expected error for missing refs/remotes/ prefix")
	}
}

func TestDidRoundTrip(t *testing.T) {
	signer := newMockSigner(3)
	id := signer.Id()
	did := NewDid(id)

	got, err := did.UserId()
	if err != nil {
		t.Fatalf("Did.UserId(): %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %x, want %x", got, id)
	}
}

func TestNewDocRejectsEmptyDelegates(t *testing.T) {
	if _, err := NewDoc("proj", "desc", "main", 1, nil, nil); err == nil {
		t.Fatal("expected error for empty delegate list")
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	signer := newMockSigner(4)
	doc, err := NewDoc("proj", "desc", "main", 1, nil, []Delegate{{Name: "alice", Id: NewDid(signer.Id())}})
	if err != nil {
		t.Fatalf("NewDoc: %v", err)
	}

	marshal := func(d *Doc) ([]byte, error) { return []byte(d.Name + d.Description + d.DefaultBranch), nil }

	id1, bytes1, err := Digest(doc, marshal)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	id2, bytes2, err := Digest(doc, marshal)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("digest not deterministic: %x != %x", id1, id2)
	}
	if !bytes.Equal(bytes1, bytes2) {
		t.Fatalf("marshaled bytes not stable across calls")
	}
}
