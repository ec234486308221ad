package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestSetLogLevel(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	setLogLevel("debug")

	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("Expected debug level, got %s", log.GetLevel())
	}
	f, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	if !ok {
		t.Fatalf("Expected a text formatter, got %T", log.StandardLogger().Formatter)
	}
	if !f.FullTimestamp || !f.ForceColors {
		t.Fatalf("Expected full timestamps and colors, got %+v", f)
	}
}
