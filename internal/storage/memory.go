// Package storage provides a reference netcore.Storage implementation
// backed by an in-memory map. "meshnode serve" uses it as the node's
// Storage, and tests use it directly. It holds only what is put into it
// through its own methods; it does not read the git repositories
// internal/gitfetch writes.
package storage

import (
	"sync"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// Memory is a concurrency-safe, in-memory netcore.Storage. The zero
// value is not usable; construct with New.
type Memory struct {
	mu    sync.RWMutex
	projs map[netcore.ProjId]map[netcore.RefName]netcore.Oid
}

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{projs: make(map[netcore.ProjId]map[netcore.RefName]netcore.Oid)}
}

// LocalInventory returns every project this store hosts, with its
// current refs, for outbound Inventory advertisement.
func (m *Memory) LocalInventory() []netcore.ProjSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]netcore.ProjSummary, 0, len(m.projs))
	for proj, refs := range m.projs {
		out = append(out, netcore.ProjSummary{Id: proj, Refs: copyRefs(refs)})
	}
	return out
}

// Has reports whether proj is already present in the store.
func (m *Memory) Has(proj netcore.ProjId) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.projs[proj]
	return ok
}

// Refs returns a copy of the ref set for proj, for answering GetRefs.
func (m *Memory) Refs(proj netcore.ProjId) (map[netcore.RefName]netcore.Oid, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs, ok := m.projs[proj]
	if !ok {
		return nil, false
	}
	return copyRefs(refs), true
}

// AddProject registers proj with an empty ref set if it is not already
// present. It is a no-op if proj is already tracked.
func (m *Memory) AddProject(proj netcore.ProjId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projs[proj]; !ok {
		m.projs[proj] = make(map[netcore.RefName]netcore.Oid)
	}
}

// SetRefs replaces the entire ref set for proj, registering proj first
// if it is not already tracked. This is how a fetch outcome or a test
// fixture seeds the store's view of a project's refs.
func (m *Memory) SetRefs(proj netcore.ProjId, refs map[netcore.RefName]netcore.Oid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projs[proj] = copyRefs(refs)
}

// SetRef sets a single ref within proj, registering proj first if it is
// not already tracked.
func (m *Memory) SetRef(proj netcore.ProjId, name netcore.RefName, oid netcore.Oid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs, ok := m.projs[proj]
	if !ok {
		refs = make(map[netcore.RefName]netcore.Oid)
		m.projs[proj] = refs
	}
	refs[name] = oid
}

// RemoveProject drops proj and its refs from the store entirely.
func (m *Memory) RemoveProject(proj netcore.ProjId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.projs, proj)
}

func copyRefs(refs map[netcore.RefName]netcore.Oid) map[netcore.RefName]netcore.Oid {
	if len(refs) == 0 {
		return nil
	}
	out := make(map[netcore.RefName]netcore.Oid, len(refs))
	for k, v := range refs {
		out[k] = v
	}
	return out
}
