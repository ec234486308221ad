package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"peerclock/datamodel/peer"
	"peerclock/helper/timer"
	"peerclock/identity"
	"peerclock/metrics"
	"peerclock/net/beacon"
	"peerclock/net/tsx"
	"peerclock/swarm/peertable"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxInFlight      = 16
	DefaultAnnounceInterval = time.Second
)

type Settings struct {
	Announce       timer.Interval
	ReportInterval time.Duration // Zero disables the peer table report
	MaxInFlight    int           // Upper bound on concurrent exchanges
}

type Node struct {
	// Node ID and the exchange port we advertise
	NodeID identity.NodeID
	Port   int

	// State
	Peers   *peertable.Table
	Journal peer.SampleJournal // Optional

	// Networking
	Beacon    *beacon.Beacon
	Responder *tsx.Server
	Exchanger *tsx.Client

	settings Settings

	// Helpers
	sem       *semaphore.Weighted
	sg        singleflight.Group
	exchanges sync.WaitGroup
	now       func() time.Time
}

var _ beacon.Handler = (*Node)(nil)

func New(nodeID identity.NodeID, settings Settings, peers *peertable.Table, journal peer.SampleJournal, bc *beacon.Beacon, responder *tsx.Server, exchanger *tsx.Client) (*Node, error) {
	if err := nodeID.Validate(); err != nil {
		return nil, err
	}
	if peers == nil || responder == nil || exchanger == nil {
		return nil, errors.New("node: peer table, responder and exchanger are required")
	}
	if settings.MaxInFlight < 1 {
		settings.MaxInFlight = DefaultMaxInFlight
	}
	if settings.Announce.Duration == 0 {
		settings.Announce.Duration = DefaultAnnounceInterval
	}
	if err := settings.Announce.Validate(); err != nil {
		return nil, fmt.Errorf("node: announce interval: %w", err)
	}

	port := responder.Port()
	if port == 0 {
		return nil, fmt.Errorf("node: cannot determine exchange port from %s", responder.Addr())
	}

	n := &Node{
		NodeID:    nodeID,
		Port:      port,
		Peers:     peers,
		Journal:   journal,
		Beacon:    bc,
		Responder: responder,
		Exchanger: exchanger,
		settings:  settings,
		sem:       semaphore.NewWeighted(int64(settings.MaxInFlight)),
		now:       time.Now,
	}

	log.Infof("I am %s, serving timestamps on port %d", n.NodeID, n.Port)

	return n, nil
}

// This is run via the RunWithTicker() helper
func (n *Node) announce(ctx context.Context) error {
	msg := &beacon.Announcement{
		NodeID: n.NodeID,
		Port:   n.Port,
	}

	// A failed send is retried on the next tick
	if err := n.Beacon.Announce(msg); err != nil {
		log.Warnf("Failed to send announcement: %v", err)
	}

	return nil
}

// HandleAnnouncement is called by the beacon listener for every announcement received.
// It never blocks on the network: exchanges run in their own goroutines.
func (n *Node) HandleAnnouncement(ctx context.Context, msg *beacon.Announcement, from *net.UDPAddr) {
	// Check if we received our own announcement
	if msg.NodeID == n.NodeID {
		metrics.Default.AnnouncementsSelf.Inc()
		log.Debugf("Received our own announcement - ignoring")
		return
	}

	log.Infof("RECV: %q from %s", msg.String(), from)

	if !n.Peers.MarkSeenOrStale(msg.NodeID) {
		return
	}

	n.spawnExchange(ctx, msg.NodeID, from.IP.String(), msg.Port)
}

// spawnExchange starts an exchange unless the in-flight limit is reached. Exchanges for the same
// peer are collapsed so that at most one runs at a time.
func (n *Node) spawnExchange(ctx context.Context, id identity.NodeID, ip string, port int) {
	if !n.sem.TryAcquire(1) {
		metrics.Default.RecordExchange(metrics.ResultSkipped, 0)
		log.Warnf("Too many exchanges in flight, skipping %s (will retry on its next announcement)", id)
		return
	}

	n.exchanges.Add(1)
	go func() {
		defer n.exchanges.Done()
		defer n.sem.Release(1)

		n.sg.Do(string(id), func() (interface{}, error) {
			metrics.Default.ExchangesInFlight.Inc()
			defer metrics.Default.ExchangesInFlight.Dec()

			err := n.exchange(ctx, id, ip, port)
			if err != nil {
				log.Errorf("Exchange with %s failed: %v", id, err)
			}
			return nil, err
		})
	}()
}

// exchange reads one timestamp from the peer and records the resulting delay
func (n *Node) exchange(ctx context.Context, id identity.NodeID, ip string, port int) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	log.Infof("Attempting to connect to %s @ %s", id, addr)

	start := time.Now()
	remote, err := n.Exchanger.Exchange(ctx, addr)
	if err != nil {
		metrics.Default.RecordExchange(metrics.ResultFailed, time.Since(start))
		return err
	}

	sampledAt := n.now()
	local := tsx.UnixSeconds(sampledAt)
	delay := tsx.Delay(local, remote)

	n.Peers.Upsert(id, peer.Record{
		Delay:        delay,
		Staleness:    1,
		Address:      ip,
		Port:         port,
		LastExchange: sampledAt,
	})

	metrics.Default.RecordExchange(metrics.ResultOK, time.Since(start))
	metrics.Default.RecordDelay(string(id), delay, n.Peers.Len())

	log.Infof("[%s] current delay %.6fs", id, delay)

	if n.Journal != nil {
		_, err := n.Journal.Append(&peer.Sample{
			NodeID:          id,
			Address:         ip,
			Port:            port,
			RemoteTimestamp: remote,
			LocalTimestamp:  local,
			Delay:           delay,
		})
		if err != nil {
			// The peer table is already updated, the journal is best effort
			log.Errorf("Failed to journal sample for %s: %v", id, err)
		}
	}

	return nil
}

// This is run via the RunWithTicker() helper
func (n *Node) report(ctx context.Context) error {
	snap := n.Peers.Snapshot()

	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	log.Infof("Peer table: %d peers known", len(ids))
	for _, id := range ids {
		log.Infof("Peer %s: %s", id, snap[identity.NodeID(id)])
	}

	return nil
}

// Run blocks until the context is cancelled or one of the long-lived tasks fails.
// In-flight exchanges are waited for before returning.
func (n *Node) Run(ctx context.Context) error {
	if n.Beacon == nil {
		return errors.New("node: no beacon configured")
	}

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return n.Beacon.Listen(cctx, n)
	})

	wg.Go(func() error {
		return n.Responder.Serve(cctx)
	})

	wg.Go(func() error {
		interval := n.settings.Announce
		interval.Immediate = true
		return timer.RunWithTicker(cctx, &interval, n.announce)
	})

	if n.settings.ReportInterval > 0 {
		wg.Go(func() error {
			return timer.RunWithTicker(cctx, &timer.Interval{Duration: n.settings.ReportInterval}, n.report)
		})
	}

	err := wg.Wait()
	n.exchanges.Wait()

	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}
