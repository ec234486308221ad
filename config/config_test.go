package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewEmptyConfig("")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if time.Duration(cfg.Discovery.AnnounceInterval) != time.Second {
		t.Fatalf("Unexpected default announce interval: %v", time.Duration(cfg.Discovery.AnnounceInterval))
	}
	if cfg.Discovery.RefreshEvery != 10 {
		t.Fatalf("Unexpected default refresh threshold: %d", cfg.Discovery.RefreshEvery)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := NewEmptyConfig(path)
	cfg.Discovery.AnnounceInterval = Duration(250 * time.Millisecond)
	cfg.Exchange.MaxInFlight = 4
	cfg.DataStore.JournalPath = "/tmp/journal"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := NewConfigFromFile(path)
	if err != nil {
		t.Fatalf("NewConfigFromFile failed: %v", err)
	}
	if time.Duration(loaded.Discovery.AnnounceInterval) != 250*time.Millisecond {
		t.Fatalf("Announce interval not preserved: %v", time.Duration(loaded.Discovery.AnnounceInterval))
	}
	if loaded.Exchange.MaxInFlight != 4 {
		t.Fatalf("MaxInFlight not preserved: %d", loaded.Exchange.MaxInFlight)
	}
	if loaded.DataStore.JournalPath != "/tmp/journal" {
		t.Fatalf("Journal path not preserved: %s", loaded.DataStore.JournalPath)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"discovery": {"refresh_every": 5}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigFromFile(path)
	if err != nil {
		t.Fatalf("NewConfigFromFile failed: %v", err)
	}
	if cfg.Discovery.RefreshEvery != 5 {
		t.Fatalf("Expected refresh_every 5, got %d", cfg.Discovery.RefreshEvery)
	}
	if cfg.Network.BroadcastAddress != "255.255.255.255:35498" {
		t.Fatalf("Default broadcast address lost: %s", cfg.Network.BroadcastAddress)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Discovery.AnnounceInterval = 0 }},
		{"jitter too large", func(c *Config) { c.Discovery.AnnounceJitter = c.Discovery.AnnounceInterval }},
		{"zero refresh", func(c *Config) { c.Discovery.RefreshEvery = 0 }},
		{"zero in flight", func(c *Config) { c.Exchange.MaxInFlight = 0 }},
		{"zero dial timeout", func(c *Config) { c.Exchange.DialTimeout = 0 }},
		{"no exchange address", func(c *Config) { c.Network.ExchangeListenAddress = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewEmptyConfig("")
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"discovery": {"announce_interval": "soon"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfigFromFile(path); err == nil {
		t.Fatal("Expected an error for an unparsable duration")
	}
}
