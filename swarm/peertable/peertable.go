// Package peertable keeps the delay measurements for every peer we exchanged timestamps with.
package peertable

import (
	"peerclock/datamodel/peer"
	"peerclock/identity"
	"sync"
)

// Every n-th announcement from a known peer triggers a new exchange
const DefaultRefreshEvery = 10

// Table maps peer identifiers to their last exchange results.
// A record only exists after a successful exchange with the peer. Records are never removed.
type Table struct {
	mu           sync.RWMutex
	refreshEvery uint64
	peers        map[identity.NodeID]*peer.Record
}

func New(refreshEvery int) *Table {
	if refreshEvery < 1 {
		refreshEvery = DefaultRefreshEvery
	}
	return &Table{
		refreshEvery: uint64(refreshEvery),
		peers:        make(map[identity.NodeID]*peer.Record),
	}
}

// Lookup returns a copy of the current record for a peer
func (t *Table) Lookup(id identity.NodeID) (peer.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.peers[id]
	if !ok {
		return peer.Record{}, false
	}
	return *r, true
}

// MarkSeenOrStale is called for every announcement received from a peer and returns true if
// a timestamp exchange is needed. This is the case when the peer is unknown or its staleness
// counter has reached a multiple of the refresh threshold; the counter is left untouched then
// and is reset by the Upsert following a successful exchange. Otherwise the counter is incremented.
func (t *Table) MarkSeenOrStale(id identity.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.peers[id]
	if !ok {
		return true
	}
	if r.Staleness%t.refreshEvery == 0 {
		return true
	}
	r.Staleness++
	return false
}

// Upsert replaces the peer's record
func (t *Table) Upsert(id identity.NodeID, record peer.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peers[id] = &record
}

// Snapshot returns a copy of all records
func (t *Table) Snapshot() map[identity.NodeID]peer.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := make(map[identity.NodeID]peer.Record, len(t.peers))
	for id, r := range t.peers {
		snap[id] = *r
	}
	return snap
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}
