package netcore

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"golang.org/x/crypto/blake2b"
)

// PeerId is a 32-byte Ed25519 public key identifying a network
// participant. UserId is an alias: every user is a peer and vice versa
// (original_source/identity.rs keeps them as distinct newtypes over the
// same verification key; this module keeps one type and lets call sites
// pick the name that reads best).
type PeerId [32]byte

// UserId is PeerId under the name used when talking about project
// delegates rather than network peers.
type UserId = PeerId

// ProjId is a 32-byte content digest identifying a project's identity
// document.
type ProjId [32]byte

// Oid is a 20-byte git SHA-1 object id.
type Oid [20]byte

// IsZero reports whether id is the zero value (used as a sentinel
// for "no advertiser known yet").
func (id PeerId) IsZero() bool { return id == PeerId{} }

// String encodes the raw key as multibase Base58Btc, matching the wire
// form mandated by spec §6 and original_source's UserId::encode.
func (id PeerId) String() string {
	s, err := multibase.Encode(multibase.Base58BTC, id[:])
	if err != nil {
		// multibase.Encode only fails on an unknown base constant; Base58BTC
		// is always valid, so this is unreachable in practice.
		panic(fmt.Sprintf("netcore: encode peer id: %v", err))
	}
	return s
}

// ParsePeerId decodes a multibase Base58Btc-encoded string into a PeerId.
func ParsePeerId(s string) (PeerId, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return PeerId{}, fmt.Errorf("invalid peer id %q: %w", s, err)
	}
	if len(data) != 32 {
		return PeerId{}, fmt.Errorf("invalid peer id %q: want 32 bytes, got %d", s, len(data))
	}
	var id PeerId
	copy(id[:], data)
	return id, nil
}

// Verify checks sig over msg under this peer's public key.
func (id PeerId) Verify(msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(id[:]), msg, sig)
}

func (p ProjId) String() string {
	s, err := multibase.Encode(multibase.Base58BTC, p[:])
	if err != nil {
		panic(fmt.Sprintf("netcore: encode proj id: %v", err))
	}
	return s
}

// ParseProjId decodes a multibase Base58Btc-encoded string into a ProjId.
func ParseProjId(s string) (ProjId, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return ProjId{}, fmt.Errorf("invalid project id %q: %w", s, err)
	}
	if len(data) != 32 {
		return ProjId{}, fmt.Errorf("invalid project id %q: want 32 bytes, got %d", s, len(data))
	}
	var id ProjId
	copy(id[:], data)
	return id, nil
}

func (o Oid) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 0, 40)
	for _, b := range o {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(buf)
}

// ParseOid decodes a lowercase-hex git object id.
func ParseOid(s string) (Oid, error) {
	var o Oid
	if len(s) != 40 {
		return o, fmt.Errorf("invalid oid %q: want 40 hex characters, got %d", s, len(s))
	}
	for i := range o {
		hi, ok1 := hexVal(s[i*2])
		lo, ok2 := hexVal(s[i*2+1])
		if !ok1 || !ok2 {
			return Oid{}, fmt.Errorf("invalid oid %q: not hex", s)
		}
		o[i] = hi<<4 | lo
	}
	return o, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// RefName is a git reference path, e.g. "heads/main" or "tags/v1.0.0";
// NewRefName validates one. A leading "refs/" is not excluded: NewRefName
// accepts it, and ParseRemoteRef strips only the
// "refs/remotes/<peer-id>/" prefix.
type RefName string

// ErrInvalidRefName is returned by NewRefName for a syntactically
// invalid reference path.
var ErrInvalidRefName = errors.New("invalid ref name")

// NewRefName validates s against the subset of the git ref-name rules
// that matter on the wire: non-empty, no leading/trailing slash, no
// doubled slash, no path components equal to "." or "..", no control
// bytes or spaces. This is a conservative subset: storage, not the
// protocol core, owns full git ref-format validation.
func NewRefName(s string) (RefName, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRefName)
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") || strings.Contains(s, "//") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRefName, s)
	}
	for _, part := range strings.Split(s, "/") {
		if part == "." || part == ".." || part == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidRefName, s)
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f || s[i] == ' ' {
			return "", fmt.Errorf("%w: %q", ErrInvalidRefName, s)
		}
	}
	return RefName(s), nil
}

// ParseRemoteRef parses a fetched ref of the form
// "refs/remotes/<peer-id>/<rest>", as found on the wire in a Refs
// message or in a repository's remote-tracking namespace. Adapted from
// original_source/node/src/git.rs's parse_ref, which performs the same
// split against a RefStr under the libgit2 ext crate.
func ParseRemoteRef(s string) (PeerId, RefName, error) {
	const prefix = "refs/remotes/"
	if !strings.HasPrefix(s, prefix) {
		return PeerId{}, "", fmt.Errorf("%w: missing %q prefix", ErrInvalidRefName, prefix)
	}
	rest := s[len(prefix):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return PeerId{}, "", fmt.Errorf("%w: no ref suffix after peer id", ErrInvalidRefName)
	}
	id, err := ParsePeerId(rest[:slash])
	if err != nil {
		return PeerId{}, "", err
	}
	name, err := NewRefName(rest[slash+1:])
	if err != nil {
		return PeerId{}, "", err
	}
	return id, name, nil
}

// Did is the did:key method URI naming a UserId. Per spec §9's
// unresolved note, this module does not claim conformance to the full
// did:key method beyond the raw-key encoding the original source used.
type Did string

// NewDid builds a did:key URI from a user id.
func NewDid(id UserId) Did {
	return Did("did:key:" + id.String())
}

// UserId extracts the underlying key from a Did, failing if the did:key:
// prefix is absent or the remainder isn't a valid PeerId.
func (d Did) UserId() (UserId, error) {
	const prefix = "did:key:"
	s := string(d)
	if !strings.HasPrefix(s, prefix) {
		return UserId{}, fmt.Errorf("invalid did %q: missing %q prefix", s, prefix)
	}
	return ParsePeerId(s[len(prefix):])
}

// Delegate names a key authorized to speak for a project.
type Delegate struct {
	Name string `yaml:"name"`
	Id   Did    `yaml:"id"`
}

// Doc is a project's identity document: the delegates authorized to
// govern it, its default branch, and (after the first revision) the
// Oid of the identity document it supersedes.
//
// Per spec §9's "Unresolved" note, this module picks the richer of the
// two divergent original drafts: Parent is optional (nil on the first
// revision of a project) and Delegates is a slice enforced non-empty by
// NewDoc rather than a dedicated non-empty-slice type — Go has no
// built-in equivalent of Rust's NonEmpty<T>, and hand-rolling one buys
// nothing a length check at construction doesn't already give.
type Doc struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	Version       uint32     `yaml:"version"`
	DefaultBranch string     `yaml:"default_branch"`
	Parent        *Oid       `yaml:"parent,omitempty"`
	Delegates     []Delegate `yaml:"delegate"`
}

// ErrNoDelegates is returned by NewDoc when constructed with an empty
// delegate list; every project identity document needs at least one
// party authorized to speak for it.
var ErrNoDelegates = errors.New("identity document needs at least one delegate")

// NewDoc validates and constructs a Doc.
func NewDoc(name, description, defaultBranch string, version uint32, parent *Oid, delegates []Delegate) (*Doc, error) {
	if len(delegates) == 0 {
		return nil, ErrNoDelegates
	}
	return &Doc{
		Name:          name,
		Description:   description,
		Version:       version,
		DefaultBranch: defaultBranch,
		Parent:        parent,
		Delegates:     append([]Delegate(nil), delegates...),
	}, nil
}

// DocCodec serializes and hashes a Doc. Marshal is injected so the
// digest is computed over exactly the bytes written to storage,
// matching original_source's Doc::write (which hashes the TOML
// serialization it is about to persist).
type DocCodec func(*Doc) ([]byte, error)

// Digest serializes doc with marshal and hashes the result with BLAKE2b-256,
// producing the ProjId the digest identifies. original_source hashes the
// canonical TOML encoding; this module keeps the same serialization
// library used elsewhere (yaml.v3, see internal/config) instead of
// introducing a TOML dependency nothing else here needs.
func Digest(doc *Doc, marshal DocCodec) (ProjId, []byte, error) {
	buf, err := marshal(doc)
	if err != nil {
		return ProjId{}, nil, fmt.Errorf("marshal identity document: %w", err)
	}
	sum := blake2b.Sum256(buf)
	return ProjId(sum), buf, nil
}
