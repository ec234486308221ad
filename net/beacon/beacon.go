// Package beacon implements the broadcast side of peer discovery.
// Announce: a text announcement is sent to the broadcast address.
// Listen: datagrams received on the broadcast port are parsed and passed on to a handler.
package beacon

import (
	"context"
	"errors"
	"net"
	"peerclock/metrics"

	log "github.com/sirupsen/logrus"
)

// Well-known UDP port shared by all nodes
const DefaultPort = 35498

const maxDatagramSize = 4096

// Handler is called from the listener goroutine for every well-formed announcement.
// It must not block.
type Handler interface {
	HandleAnnouncement(ctx context.Context, msg *Announcement, from *net.UDPAddr)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, msg *Announcement, from *net.UDPAddr)

func (f HandlerFunc) HandleAnnouncement(ctx context.Context, msg *Announcement, from *net.UDPAddr) {
	f(ctx, msg, from)
}

type Beacon struct {
	rc *net.UDPConn
	wc *net.UDPConn
}

// New creates a Beacon reading announcements from rconn and sending them through wconn.
// The Beacon owns both connections and closes them when Listen returns.
func New(rconn *net.UDPConn, wconn *net.UDPConn) *Beacon {
	return &Beacon{
		rc: rconn,
		wc: wconn,
	}
}

// ListenUDP binds the receiving socket. SO_REUSEADDR and SO_REUSEPORT are set so that
// several nodes on the same host can share the broadcast port.
func ListenUDP(ctx context.Context, address string) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: controlReuse}
	pc, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// DialUDP creates the sending socket. SO_BROADCAST is set so the target may be a broadcast address.
func DialUDP(ctx context.Context, target string) (*net.UDPConn, error) {
	d := net.Dialer{Control: controlBroadcast}
	c, err := d.DialContext(ctx, "udp4", target)
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}

// LocalAddr returns the address the receiving socket is bound to
func (b *Beacon) LocalAddr() net.Addr {
	return b.rc.LocalAddr()
}

// Announce sends a single announcement datagram
func (b *Beacon) Announce(msg *Announcement) error {
	data, err := msg.MarshalText()
	if err != nil {
		return err
	}

	_, err = b.wc.Write(data)
	if err != nil {
		metrics.Default.AnnouncementSendErrors.Inc()
		return err
	}
	metrics.Default.AnnouncementsSent.Inc()

	log.Debugf("beacon: sent %q to %s", data, b.wc.RemoteAddr())
	return nil
}

// Listen receives datagrams until the context is cancelled. Malformed datagrams
// and transient read errors are logged and skipped.
func (b *Beacon) Listen(ctx context.Context, h Handler) error {
	go func() {
		<-ctx.Done()
		log.Debugf("beacon: context cancelled, closing %s", b.rc.LocalAddr())
		if err := b.rc.Close(); err != nil {
			log.Warnf("beacon: error closing listener: %v", err)
		}
		if err := b.wc.Close(); err != nil {
			log.Warnf("beacon: error closing sender: %v", err)
		}
	}()

	log.Infof("beacon: listening for announcements on %s", b.rc.LocalAddr())

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := b.rc.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				log.Errorf("beacon: listener closed: %v", err)
				return err
			}
			log.Errorf("beacon: failed to read datagram: %v", err)
			continue
		}

		msg, err := ParseAnnouncement(buf[:n])
		if err != nil {
			metrics.Default.AnnouncementsMalformed.Inc()
			log.Warnf("beacon: discarding %q from %s: %v", buf[:n], from, err)
			continue
		}
		metrics.Default.AnnouncementsReceived.Inc()

		h.HandleAnnouncement(ctx, msg, from)
	}
}
