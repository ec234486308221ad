package tsx

import (
	"context"
	"errors"
	"net"
	"peerclock/metrics"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultWriteTimeout = 2 * time.Second

// Server is the exchange responder. Every accepted connection is served in its own goroutine.
type Server struct {
	listener     net.Listener
	writeTimeout time.Duration
	now          func() time.Time
}

func NewServer(listener net.Listener, writeTimeout time.Duration) *Server {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Server{
		listener:     listener,
		writeTimeout: writeTimeout,
		now:          time.Now,
	}
}

// Port returns the TCP port the server is listening on. This is the port we advertise.
func (srv *Server) Port() int {
	if a, ok := srv.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return 0
}

func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

func (srv *Server) Serve(ctx context.Context) error {
	// Closing the listener unblocks Accept
	go func() {
		<-ctx.Done()
		log.Infof("tsx.Server: context cancelled, closing listener %s", srv.listener.Addr())
		if err := srv.listener.Close(); err != nil {
			log.Warnf("tsx.Server: error closing listener %s: %v", srv.listener.Addr(), err)
		}
	}()

	log.Infof("tsx.Server: serving timestamps on %s", srv.listener.Addr())

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("tsx.Server: shutting down listener %s", srv.listener.Addr())
				return ctx.Err()
			default:
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Warnf("tsx.Server: accept error on %s: %v; retrying in %v", srv.listener.Addr(), err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			log.Errorf("tsx.Server: critical accept error on %s: %v. Server stopping.", srv.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		go srv.serveConn(conn)
	}
}

// serveConn writes one timestamp and closes. Nothing is read from the initiator.
func (srv *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	now := UnixSeconds(srv.now())
	msg := EncodeTimestamp(now)

	if err := conn.SetWriteDeadline(time.Now().Add(srv.writeTimeout)); err != nil {
		log.Warnf("tsx.Server: failed to set write deadline for %s: %v", conn.RemoteAddr(), err)
	}

	if _, err := conn.Write(msg[:]); err != nil {
		metrics.Default.ResponsesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		log.Warnf("tsx.Server: failed to send timestamp to %s: %v", conn.RemoteAddr(), err)
		return
	}

	metrics.Default.ResponsesTotal.WithLabelValues(metrics.ResultOK).Inc()
	log.Debugf("tsx.Server: sent timestamp %.3f to %s", now, conn.RemoteAddr())
}
