package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration stored as a string ("1s", "250ms") in the config file
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config represents the configuration of a peerclock node
type Config struct {
	// Default config file location
	configFile string

	Network struct {
		BroadcastListenAddress string `json:"broadcast_listen"`  // Where announcements are received
		BroadcastAddress       string `json:"broadcast_address"` // Where announcements are sent
		ExchangeListenAddress  string `json:"exchange_listen"`   // Timestamp responder, port 0 picks an ephemeral port
		MetricsListenAddress   string `json:"metrics_listen"`    // Empty disables the metrics endpoint
	} `json:"network"`

	Discovery struct {
		AnnounceInterval Duration `json:"announce_interval"`
		AnnounceJitter   Duration `json:"announce_jitter"`
		RefreshEvery     int      `json:"refresh_every"`   // Re-exchange with a known peer every n-th announcement
		ReportInterval   Duration `json:"report_interval"` // Zero disables the periodic peer table report
	} `json:"discovery"`

	Exchange struct {
		DialTimeout  Duration `json:"dial_timeout"`
		ReadTimeout  Duration `json:"read_timeout"`
		WriteTimeout Duration `json:"write_timeout"`
		MaxInFlight  int      `json:"max_in_flight"`
	} `json:"exchange"`

	DataStore struct {
		JournalPath string `json:"journal"` // Empty disables the sample journal
	} `json:"datastore"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Network.BroadcastListenAddress = ":35498"
	cfg.Network.BroadcastAddress = "255.255.255.255:35498"
	cfg.Network.ExchangeListenAddress = ":0"
	cfg.Network.MetricsListenAddress = ""

	cfg.Discovery.AnnounceInterval = Duration(time.Second)
	cfg.Discovery.AnnounceJitter = 0
	cfg.Discovery.RefreshEvery = 10
	cfg.Discovery.ReportInterval = 0

	cfg.Exchange.DialTimeout = Duration(2 * time.Second)
	cfg.Exchange.ReadTimeout = Duration(2 * time.Second)
	cfg.Exchange.WriteTimeout = Duration(2 * time.Second)
	cfg.Exchange.MaxInFlight = 16

	cfg.DataStore.JournalPath = ""

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Network.BroadcastListenAddress == "" || c.Network.BroadcastAddress == "" {
		return fmt.Errorf("%w: broadcast addresses must be set", ErrInvalid)
	}
	if c.Network.ExchangeListenAddress == "" {
		return fmt.Errorf("%w: exchange_listen must be set", ErrInvalid)
	}
	if c.Discovery.AnnounceInterval <= 0 {
		return fmt.Errorf("%w: announce_interval must be positive", ErrInvalid)
	}
	if c.Discovery.AnnounceJitter < 0 || c.Discovery.AnnounceJitter >= c.Discovery.AnnounceInterval {
		return fmt.Errorf("%w: announce_jitter must be in [0, announce_interval)", ErrInvalid)
	}
	if c.Discovery.RefreshEvery < 1 {
		return fmt.Errorf("%w: refresh_every must be at least 1", ErrInvalid)
	}
	if c.Discovery.ReportInterval < 0 {
		return fmt.Errorf("%w: report_interval must not be negative", ErrInvalid)
	}
	if c.Exchange.DialTimeout <= 0 || c.Exchange.ReadTimeout <= 0 || c.Exchange.WriteTimeout <= 0 {
		return fmt.Errorf("%w: exchange timeouts must be positive", ErrInvalid)
	}
	if c.Exchange.MaxInFlight < 1 {
		return fmt.Errorf("%w: max_in_flight must be at least 1", ErrInvalid)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	// We'll marshall our structure to JSON and write it into a file
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}
