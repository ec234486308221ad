package commands

import (
	"context"
	"fmt"
	"net"
	"peerclock/config"
	"peerclock/datamodel/peer"
	"peerclock/datastore/leveldb"
	"peerclock/helper/timer"
	"peerclock/identity"
	"peerclock/metrics"
	"peerclock/net/beacon"
	"peerclock/net/tsx"
	"peerclock/swarm/node"
	"peerclock/swarm/peertable"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

func RunServe(ctx context.Context, cfg *config.Config) {
	if err := serve(ctx, cfg); err != nil {
		log.Fatalf("Node stopped: %v", err)
	}
	log.Info("Node stopped")
}

// serve runs the node until the context is cancelled. Resources opened here are released before it returns.
func serve(ctx context.Context, cfg *config.Config) error {
	nodeID := identity.Local()
	log.Infof("Node ID: %s", nodeID)

	// Optional sample journal
	var journal peer.SampleJournal
	if cfg.DataStore.JournalPath != "" {
		j, err := leveldb.NewSampleJournal(cfg.DataStore.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open sample journal: %w", err)
		}
		defer j.Close()
		journal = j
	}

	// Timestamp responder
	tl, err := net.Listen("tcp4", cfg.Network.ExchangeListenAddress)
	if err != nil {
		return fmt.Errorf("failed to create exchange listener: %w", err)
	}
	responder := tsx.NewServer(tl, time.Duration(cfg.Exchange.WriteTimeout))
	log.Infof("Server initialized on port %d", responder.Port())

	// Broadcast sockets
	rs, err := beacon.ListenUDP(ctx, cfg.Network.BroadcastListenAddress)
	if err != nil {
		tl.Close()
		return fmt.Errorf("failed to create broadcast listener: %w", err)
	}

	ws, err := beacon.DialUDP(ctx, cfg.Network.BroadcastAddress)
	if err != nil {
		tl.Close()
		rs.Close()
		return fmt.Errorf("failed to create broadcast writer: %w", err)
	}

	settings := node.Settings{
		Announce: timer.Interval{
			Duration: time.Duration(cfg.Discovery.AnnounceInterval),
			Jitter:   time.Duration(cfg.Discovery.AnnounceJitter),
		},
		ReportInterval: time.Duration(cfg.Discovery.ReportInterval),
		MaxInFlight:    cfg.Exchange.MaxInFlight,
	}

	n, err := node.New(nodeID, settings,
		peertable.New(cfg.Discovery.RefreshEvery),
		journal,
		beacon.New(rs, ws),
		responder,
		tsx.NewClient(time.Duration(cfg.Exchange.DialTimeout), time.Duration(cfg.Exchange.ReadTimeout)))
	if err != nil {
		tl.Close()
		rs.Close()
		ws.Close()
		return fmt.Errorf("failed to create node: %w", err)
	}

	wg, cctx := errgroup.WithContext(ctx)

	if cfg.Network.MetricsListenAddress != "" {
		ml, err := net.Listen("tcp", cfg.Network.MetricsListenAddress)
		if err != nil {
			tl.Close()
			rs.Close()
			ws.Close()
			return fmt.Errorf("failed to create metrics listener: %w", err)
		}
		ms := metrics.NewServer(ml, func() any { return n.Peers.Snapshot() })
		wg.Go(func() error {
			return ms.Serve(cctx)
		})
	}

	wg.Go(func() error {
		return n.Run(cctx)
	})

	return wg.Wait()
}
