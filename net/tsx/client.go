package tsx

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	DefaultDialTimeout = 2 * time.Second
	DefaultReadTimeout = 2 * time.Second
)

// Client is the exchange initiator. It holds no state between exchanges.
type Client struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

func NewClient(dialTimeout, readTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Client{
		DialTimeout: dialTimeout,
		ReadTimeout: readTimeout,
	}
}

// Exchange connects to the responder at address and returns the timestamp it sends.
func (c *Client) Exchange(ctx context.Context, address string) (float64, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp4", address)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}

	var buf [MessageSize]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return 0, fmt.Errorf("reading from %s: %w", address, ErrShortMessage)
		}
		return 0, fmt.Errorf("reading from %s: %w", address, err)
	}

	ts, err := DecodeTimestamp(buf[:])
	if err != nil {
		return 0, fmt.Errorf("decoding timestamp from %s: %w", address, err)
	}
	return ts, nil
}
