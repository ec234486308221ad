package beacon

import (
	"errors"
	"fmt"
	"peerclock/identity"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Status keyword carried by every announcement
const StatusOn = "ON"

var ErrMalformedAnnouncement = errors.New("malformed announcement")

// Announcement advertises a node and the TCP port of its timestamp responder.
// On the wire it is the UTF-8 text "<node id> ON <port>" without a trailing delimiter.
type Announcement struct {
	NodeID identity.NodeID
	Port   int
}

func (a *Announcement) String() string {
	return fmt.Sprintf("%s %s %d", a.NodeID, StatusOn, a.Port)
}

func (a *Announcement) MarshalText() ([]byte, error) {
	if err := a.NodeID.Validate(); err != nil {
		return nil, err
	}
	if a.Port < 1 || a.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", a.Port)
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses a received datagram. The datagram must be valid UTF-8 and fields are
// separated by whitespace; anything past the third field is ignored.
func (a *Announcement) UnmarshalText(data []byte) error {
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: not valid UTF-8", ErrMalformedAnnouncement)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedAnnouncement, len(fields))
	}
	if fields[1] != StatusOn {
		return fmt.Errorf("%w: unknown status %q", ErrMalformedAnnouncement, fields[1])
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("%w: bad port %q", ErrMalformedAnnouncement, fields[2])
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrMalformedAnnouncement, port)
	}

	id := identity.NodeID(fields[0])
	if err := id.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedAnnouncement, err)
	}

	a.NodeID = id
	a.Port = port
	return nil
}

func ParseAnnouncement(data []byte) (*Announcement, error) {
	a := &Announcement{}
	if err := a.UnmarshalText(data); err != nil {
		return nil, err
	}
	return a, nil
}
