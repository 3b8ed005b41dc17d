// Package model defines the row types persisted by the indexer. Every
// entity is keyed by a 32-byte Hash; optional columns are pointers so that
// excluded fields persist as NULL.
package model

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// HashSize is the length in bytes of block hashes and transaction ids.
const HashSize = 32

// Hash is a 32-byte block hash or transaction id.
type Hash [HashSize]byte

// ParseHash decodes a bare (unprefixed) hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrapf(err, "invalid hash %q", s)
	}
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash length %d for %q", len(b), s)
	}
	copy(h[:], b)
	return h, nil
}

// MustParseHash is ParseHash for statically known inputs; it panics on error.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// HashFromBytes copies b into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the hash as a byte slice, as bound into bytea columns.
func (h Hash) Bytes() []byte {
	return h[:]
}

// Value implements driver.Valuer so pgx binds the hash as bytea.
func (h Hash) Value() (driver.Value, error) {
	return h[:], nil
}

// Scan implements sql.Scanner for reading bytea columns.
func (h *Hash) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return errors.Errorf("cannot scan %T into Hash", src)
	}
	if len(b) != HashSize {
		return errors.Errorf("cannot scan %d bytes into Hash", len(b))
	}
	copy(h[:], b)
	return nil
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
