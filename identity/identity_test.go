package identity

import (
	"errors"
	"testing"
)

func TestNewIsValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		if len(id) != idLength {
			t.Fatalf("Unexpected ID length: %d (%q)", len(id), id)
		}
		if err := id.Validate(); err != nil {
			t.Fatalf("Generated ID %q is not valid: %v", id, err)
		}
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[NodeID]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestLocalIsCached(t *testing.T) {
	a := Local()
	b := Local()
	if a != b {
		t.Fatalf("Local() returned different values: %s != %s", a, b)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		id  NodeID
		err error
	}{
		{"aaaa1111", nil},
		{"", ErrorEmptyNodeID},
		{"aa aa", ErrorInvalidNodeID},
		{"aa\taa", ErrorInvalidNodeID},
		{"aa\x00", ErrorInvalidNodeID},
		{"\xff\xfe", ErrorInvalidNodeID},
		{"aa\xc3", ErrorInvalidNodeID},
		{"n\u00f6de", nil},
	}

	for _, tc := range tests {
		err := tc.id.Validate()
		if !errors.Is(err, tc.err) {
			t.Errorf("Validate(%q) = %v, want %v", tc.id, err, tc.err)
		}
	}
}
