// Package identity generates the node identifier advertised in announcements.
package identity

import (
	"errors"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	log "github.com/sirupsen/logrus"
)

// Length of a generated NodeID in characters
const idLength = 8

var ErrorEmptyNodeID = errors.New("empty node ID")
var ErrorInvalidNodeID = errors.New("node ID is not UTF-8 or contains whitespace or non-printable characters")

// NodeID is an opaque identifier, unique for the lifetime of a process.
// It travels as the first field of a space-separated announcement and therefore must not contain whitespace.
type NodeID string

func (id NodeID) String() string {
	return string(id)
}

// Validate checks that the ID can be carried in an announcement
func (id NodeID) Validate() error {
	if id == "" {
		return ErrorEmptyNodeID
	}
	if !utf8.ValidString(string(id)) {
		return ErrorInvalidNodeID
	}
	if strings.IndexFunc(string(id), func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) >= 0 {
		return ErrorInvalidNodeID
	}
	return nil
}

// New generates a fresh NodeID from a random UUID
func New() NodeID {
	return NodeID(strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength])
}

var (
	localOnce sync.Once
	local     NodeID
)

// Local returns the identity of this process. It is generated on the first call and cached afterwards.
func Local() NodeID {
	localOnce.Do(func() {
		local = New()
		log.Debugf("identity: generated node ID %s", local)
	})
	return local
}
