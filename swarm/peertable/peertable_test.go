package peertable

import (
	"peerclock/datamodel/peer"
	"peerclock/identity"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func freshRecord(delay float64) peer.Record {
	return peer.Record{
		Delay:        delay,
		Staleness:    1,
		Address:      "127.0.0.1",
		Port:         5001,
		LastExchange: time.Now(),
	}
}

func TestUnknownPeerNeedsExchange(t *testing.T) {
	tbl := New(DefaultRefreshEvery)

	for i := 0; i < 3; i++ {
		if !tbl.MarkSeenOrStale("aaaa1111") {
			t.Fatalf("Unknown peer must always need an exchange (call %d)", i)
		}
	}

	if _, ok := tbl.Lookup("aaaa1111"); ok {
		t.Fatal("MarkSeenOrStale must not create a record")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Expected empty table, got %d entries", tbl.Len())
	}
}

func TestRefreshThreshold(t *testing.T) {
	tbl := New(DefaultRefreshEvery)
	id := identity.NodeID("aaaa1111")

	tbl.Upsert(id, freshRecord(0.5))

	// Nine announcements move the counter from 1 to 10 without an exchange
	for i := 0; i < 9; i++ {
		if tbl.MarkSeenOrStale(id) {
			t.Fatalf("Unexpected exchange at announcement %d", i+1)
		}
	}

	r, ok := tbl.Lookup(id)
	if !ok {
		t.Fatal("Record disappeared")
	}
	if r.Staleness != 10 {
		t.Fatalf("Expected staleness 10, got %d", r.Staleness)
	}

	// The tenth announcement triggers, and keeps triggering until the exchange succeeds
	for i := 0; i < 3; i++ {
		if !tbl.MarkSeenOrStale(id) {
			t.Fatalf("Expected an exchange once the threshold is reached (call %d)", i)
		}
	}
	r, _ = tbl.Lookup(id)
	if r.Staleness != 10 {
		t.Fatalf("Counter must be left untouched when an exchange is needed, got %d", r.Staleness)
	}

	// A successful exchange resets the counter
	tbl.Upsert(id, freshRecord(0.25))
	if tbl.MarkSeenOrStale(id) {
		t.Fatal("Unexpected exchange right after a reset")
	}
	r, _ = tbl.Lookup(id)
	if r.Staleness != 2 {
		t.Fatalf("Expected staleness 2, got %d", r.Staleness)
	}
	if r.Delay != 0.25 {
		t.Fatalf("Expected delay 0.25, got %v", r.Delay)
	}
}

func TestCustomRefreshThreshold(t *testing.T) {
	tbl := New(3)
	id := identity.NodeID("bbbb2222")
	tbl.Upsert(id, freshRecord(0))

	got := []bool{}
	for i := 0; i < 4; i++ {
		got = append(got, tbl.MarkSeenOrStale(id))
	}
	want := []bool{false, false, true, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Call %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestInvalidThresholdFallsBackToDefault(t *testing.T) {
	tbl := New(0)
	if tbl.refreshEvery != DefaultRefreshEvery {
		t.Fatalf("Expected default threshold, got %d", tbl.refreshEvery)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	tbl := New(DefaultRefreshEvery)
	tbl.Upsert("aaaa1111", freshRecord(1))

	r, _ := tbl.Lookup("aaaa1111")
	r.Delay = 42

	r2, _ := tbl.Lookup("aaaa1111")
	if r2.Delay != 1 {
		t.Fatalf("Table was mutated through a looked up copy: %v", r2.Delay)
	}

	snap := tbl.Snapshot()
	snap["aaaa1111"] = freshRecord(7)
	r3, _ := tbl.Lookup("aaaa1111")
	if r3.Delay != 1 {
		t.Fatalf("Table was mutated through a snapshot: %v", r3.Delay)
	}
}

// With the counter sitting on a multiple of the threshold, concurrent announcements
// all ask for an exchange and never move the counter.
func TestConcurrentMarkSeenOrStale(t *testing.T) {
	tbl := New(DefaultRefreshEvery)
	id := identity.NodeID("aaaa1111")
	tbl.Upsert(id, freshRecord(0))

	var wg sync.WaitGroup
	var triggered atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tbl.MarkSeenOrStale(id) {
				triggered.Add(1)
			}
		}()
	}
	wg.Wait()

	// 9 increments take the counter from 1 to 10, the other 41 calls trigger
	if triggered.Load() != 41 {
		t.Fatalf("Expected 41 triggered exchanges, got %d", triggered.Load())
	}
	r, _ := tbl.Lookup(id)
	if r.Staleness != 10 {
		t.Fatalf("Expected staleness 10, got %d", r.Staleness)
	}
}
