package commands

import (
	"context"
	"peerclock/config"
	"peerclock/datastore/leveldb"
	"testing"
	"time"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.NewEmptyConfig("")
	cfg.Network.BroadcastListenAddress = "127.0.0.1:0"
	cfg.Network.BroadcastAddress = "127.0.0.1:9"
	cfg.Network.ExchangeListenAddress = "127.0.0.1:0"
	cfg.DataStore.JournalPath = t.TempDir()
	return cfg
}

// The journal holds a file lock, so reopening it only works once serve has closed it
func reopenJournal(t *testing.T, path string) {
	j, err := leveldb.NewSampleJournal(path)
	if err != nil {
		t.Fatalf("Journal was not released: %v", err)
	}
	j.Close()
}

func TestServeStartupFailureClosesJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Network.ExchangeListenAddress = "256.0.0.1:0"

	if err := serve(context.Background(), cfg); err == nil {
		t.Fatal("Expected an error for an unusable exchange address")
	}
	reopenJournal(t, cfg.DataStore.JournalPath)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	reopenJournal(t, cfg.DataStore.JournalPath)
}
