// Package tsx implements the timestamp exchange: a responder writes its current Unix time
// as a single big-endian float32 on every accepted connection, and an initiator reads it.
package tsx

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// Size of an exchange message in bytes
const MessageSize = 4

var ErrShortMessage = errors.New("short timestamp message")
var ErrInvalidTimestamp = errors.New("timestamp is not a finite number")

// UnixSeconds converts t to fractional seconds since the epoch
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// EncodeTimestamp encodes seconds since the epoch. Precision is that of a float32,
// which for current dates is 128 seconds.
func EncodeTimestamp(seconds float64) [MessageSize]byte {
	var b [MessageSize]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(seconds)))
	return b
}

func DecodeTimestamp(b []byte) (float64, error) {
	if len(b) < MessageSize {
		return 0, ErrShortMessage
	}
	v := float64(math.Float32frombits(binary.BigEndian.Uint32(b[:MessageSize])))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidTimestamp
	}
	return v, nil
}

// Delay is the one-way estimate recorded for a peer. It is negative when the peer's clock is ahead.
func Delay(local, remote float64) float64 {
	return local - remote
}
