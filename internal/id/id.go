// Package id generates and parses the opaque identifiers used for client
// sessions. It is a direct generalization of the
// Id type in bringyour-connect's connect package, stripped of that package's
// transfer-path concerns.
package id

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

// ID is a 16 byte lexicographically-sortable identifier.
type ID [16]byte

// New generates a fresh ID from the current time and a crypto-random entropy source.
func New() ID {
	return ID(ulid.Make())
}

func FromBytes(b []byte) (ID, error) {
	if len(b) != 16 {
		return ID{}, errors.New("id: must be 16 bytes")
	}
	var out ID
	copy(out[:], b)
	return out, nil
}

func Parse(s string) (ID, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

func (self ID) Bytes() []byte {
	return self[:]
}

func (self ID) String() string {
	return ulid.ULID(self).String()
}

func (self ID) IsZero() bool {
	return self == ID{}
}
