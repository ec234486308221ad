// Package metrics provides Prometheus metrics for the node and the HTTP endpoint serving them.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"
)

// Exchange results
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Upper bound on distinct peer label values of PeerDelay
const DefaultMaxPeerSeries = 256

// Metrics holds all Prometheus metrics for the node.
type Metrics struct {
	// Announcement metrics
	AnnouncementsSent      prometheus.Counter
	AnnouncementSendErrors prometheus.Counter
	AnnouncementsReceived  prometheus.Counter
	AnnouncementsMalformed prometheus.Counter
	AnnouncementsSelf      prometheus.Counter

	// Exchange metrics
	ExchangesTotal    *prometheus.CounterVec
	ExchangesInFlight prometheus.Gauge
	ExchangeLatency   prometheus.Histogram
	ResponsesTotal    *prometheus.CounterVec

	// Peer table
	KnownPeers prometheus.Gauge
	PeerDelay  *prometheus.GaugeVec

	mu            sync.Mutex
	peerSeries    map[string]struct{}
	maxPeerSeries int
}

// Default is the process-wide metrics set
var Default = NewMetrics("peerclock")

// NewMetrics creates a new Metrics instance with the given namespace and registers it with the default registry.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		AnnouncementsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_sent_total",
			Help:      "Total number of announcements broadcast",
		}),
		AnnouncementSendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcement_send_errors_total",
			Help:      "Total number of announcements that failed to send",
		}),
		AnnouncementsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_received_total",
			Help:      "Total number of well-formed announcements received, including our own",
		}),
		AnnouncementsMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_malformed_total",
			Help:      "Total number of discarded datagrams",
		}),
		AnnouncementsSelf: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_self_total",
			Help:      "Total number of our own announcements received back",
		}),

		ExchangesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Timestamp exchanges initiated by result",
		}, []string{"result"}),
		ExchangesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchanges_in_flight",
			Help:      "Number of timestamp exchanges currently running",
		}),
		ExchangeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time to connect and read a timestamp from a peer",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		ResponsesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Timestamps served to peers by result",
		}, []string{"result"}),

		KnownPeers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_peers",
			Help:      "Number of peers in the peer table",
		}),
		PeerDelay: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peer_delay_seconds",
			Help:      "Last measured delay per peer",
		}, []string{"peer"}),

		peerSeries:    make(map[string]struct{}),
		maxPeerSeries: DefaultMaxPeerSeries,
	}
}

// RecordExchange records the outcome of a timestamp exchange.
func (m *Metrics) RecordExchange(result string, duration time.Duration) {
	m.ExchangesTotal.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.ExchangeLatency.Observe(duration.Seconds())
	}
}

// RecordDelay updates the per-peer delay gauge and the peer count. Peers beyond
// the series limit, or whose ID cannot be a label value, are only counted.
func (m *Metrics) RecordDelay(peer string, delay float64, knownPeers int) {
	m.KnownPeers.Set(float64(knownPeers))

	if !utf8.ValidString(peer) {
		log.Warnf("metrics: peer ID %q is not valid UTF-8, not exported", peer)
		return
	}

	m.mu.Lock()
	_, known := m.peerSeries[peer]
	if !known {
		if len(m.peerSeries) >= m.maxPeerSeries {
			m.mu.Unlock()
			log.Debugf("metrics: peer series limit %d reached, not exporting delay of %s", m.maxPeerSeries, peer)
			return
		}
		m.peerSeries[peer] = struct{}{}
	}
	m.mu.Unlock()

	g, err := m.PeerDelay.GetMetricWithLabelValues(peer)
	if err != nil {
		log.Warnf("metrics: cannot export delay of %q: %v", peer, err)
		return
	}
	g.Set(delay)
}

// Server runs an HTTP server exposing /metrics, /health and /peers.
type Server struct {
	server   *http.Server
	listener net.Listener
}

// NewServer creates a metrics server on the given listener. snapshot is marshalled as JSON on /peers.
func NewServer(listener net.Listener, snapshot func() any) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/peers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			log.Warnf("metrics.Server: failed to encode peers: %v", err)
		}
	})

	return &Server{
		listener: listener,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			log.Warnf("metrics.Server: shutdown: %v", err)
		}
	}()

	log.Infof("metrics.Server: serving on %s", s.listener.Addr())
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
