package gocompositor

import (
	"sort"
	"sync"
)

// A FilterChainTable maps tracks to the filter chain applied to them. It is safe
// to replace chains while frames are being composited; a frame sees either the
// old or the new chain of a track, never a mix.
type FilterChainTable struct {
	mu     sync.RWMutex
	chains map[TrackID]FilterChain
}

// NewFilterChainTable returns an empty table.
func NewFilterChainTable() *FilterChainTable {
	return &FilterChainTable{chains: map[TrackID]FilterChain{}}
}

// Set replaces the chain of the given track. The chain is copied.
func (t *FilterChainTable) Set(track TrackID, chain FilterChain) {
	stored := make(FilterChain, len(chain))
	copy(stored, chain)
	t.mu.Lock()
	t.chains[track] = stored
	t.mu.Unlock()
}

// Get returns the chain of the given track, which is empty if none was set. The
// returned chain must not be modified.
func (t *FilterChainTable) Get(track TrackID) FilterChain {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chains[track]
}

// Delete removes the chain of the given track.
func (t *FilterChainTable) Delete(track TrackID) {
	t.mu.Lock()
	delete(t.chains, track)
	t.mu.Unlock()
}

// Tracks returns the sorted tracks that have a chain.
func (t *FilterChainTable) Tracks() []TrackID {
	t.mu.RLock()
	tracks := make([]TrackID, 0, len(t.chains))
	for track := range t.chains {
		tracks = append(tracks, track)
	}
	t.mu.RUnlock()
	sort.Slice(tracks, func(i, j int) bool { return tracks[i] < tracks[j] })
	return tracks
}
