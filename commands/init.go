package commands

import (
	"context"
	"peerclock/config"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a configuration file with default settings
func RunInit(ctx context.Context, cfg *config.Config) {
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}
}
