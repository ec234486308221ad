package peer

import (
	"fmt"
	"net"
	"peerclock/identity"
	"strconv"
	"time"
)

// Record is what we know about a peer after the last successful timestamp exchange.
type Record struct {
	Delay        float64   `json:"delay"`         // Local time minus peer time in seconds, as last measured
	Staleness    uint64    `json:"staleness"`     // Announcements seen since the last exchange
	Address      string    `json:"address"`       // Peer IP address
	Port         int       `json:"port"`          // Peer exchange port
	LastExchange time.Time `json:"last_exchange"` // When the delay was measured
}

// Endpoint returns the host:port of the peer's exchange listener
func (r Record) Endpoint() string {
	return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
}

func (r Record) String() string {
	return fmt.Sprintf("delay=%.6fs staleness=%d endpoint=%s", r.Delay, r.Staleness, r.Endpoint())
}

// Sample is a single delay measurement as recorded in the journal.
type Sample struct {
	SequenceNumber  uint64          `cbor:"1,keyasint,omitempty"` // Local journal sequence number
	NodeID          identity.NodeID `cbor:"2,keyasint,omitempty"` // Peer identifier
	Address         string          `cbor:"3,keyasint,omitempty"` // Peer IP address
	Port            int             `cbor:"4,keyasint,omitempty"` // Peer exchange port
	RemoteTimestamp float64         `cbor:"5,keyasint,omitempty"` // Unix seconds reported by the peer
	LocalTimestamp  float64         `cbor:"6,keyasint,omitempty"` // Unix seconds sampled locally after the read
	Delay           float64         `cbor:"7,keyasint"`           // LocalTimestamp - RemoteTimestamp
}

// SampleJournal defines the interface for an append-only history of delay samples.
type SampleJournal interface {
	// Append assigns the next sequence number to the sample and stores it.
	// It returns the stored Sample and an error if the operation fails.
	Append(*Sample) (*Sample, error)

	// Latest returns the most recent sample recorded for a peer.
	Latest(identity.NodeID) (*Sample, error)

	// EnumerateBySeq returns samples with sequence numbers in [start, end).
	EnumerateBySeq(start uint64, end uint64) ([]*Sample, error)

	// Peers returns the identifiers of all peers with at least one sample.
	Peers() ([]identity.NodeID, error)

	// GetSeq returns the sequence number of the last appended sample.
	GetSeq() uint64

	// Close releases any resources held by the journal.
	Close() error
}
