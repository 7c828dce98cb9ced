// Package reputation provides sovereign per-peer interaction history.
// Each node collects its own local data about the peers it has handshaken
// with; there is no gossip of this data and no centralization. This is
// Layer 0 data collection that a future trust algorithm (peer scoring,
// tracking-policy hints) would consume as input.
package reputation

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// PeerRecord holds interaction history for a single peer, keyed by its
// netcore.PeerId string encoding.
type PeerRecord struct {
	PeerID          string    `json:"peer_id"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	ConnectionCount int       `json:"connection_count"`
}

// PeerHistory manages the local interaction history file.
type PeerHistory struct {
	mu      sync.RWMutex
	path    string
	records map[string]*PeerRecord
}

// NewPeerHistory creates or loads a peer history from the given file path.
func NewPeerHistory(path string) *PeerHistory {
	h := &PeerHistory{
		path:    path,
		records: make(map[string]*PeerRecord),
	}
	_ = h.Load() // best-effort load
	return h
}

// RecordConnection notes that a handshake with peerID completed, bumping
// its connection count and last-seen timestamp.
func (h *PeerHistory) RecordConnection(peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.records[peerID]
	if !ok {
		r = &PeerRecord{
			PeerID:    peerID,
			FirstSeen: time.Now(),
		}
		h.records[peerID] = r
	}

	r.LastSeen = time.Now()
	r.ConnectionCount++
}

// Get returns a copy of the record for the given peer, or nil if not found.
func (h *PeerHistory) Get(peerID string) *PeerRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.records[peerID]
	if !ok {
		return nil
	}
	copy := *r
	return &copy
}

// Count returns the number of peers tracked.
func (h *PeerHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Load reads the history file from disk.
func (h *PeerHistory) Load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history: %w", err)
	}

	var records map[string]*PeerRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	h.mu.Lock()
	h.records = records
	h.mu.Unlock()
	return nil
}

// Save writes the history file to disk atomically.
func (h *PeerHistory) Save() error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.records, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Atomic write via temp file + rename.
	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
