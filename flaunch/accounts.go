package flaunch

import (
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// AccountID is a 32-byte ledger account identifier. The canonical text form
// is base58, matching how the ledger renders account keys.
type AccountID [32]byte

// ParseAccountID decodes the base58 text form of an account identifier
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID

	b, err := base58.Decode(s)
	if err != nil {
		return id, errors.Wrap(err, "invalid account ID")
	}
	if len(b) != len(id) {
		return id, errors.Errorf("invalid account ID length %v", len(b))
	}

	copy(id[:], b)
	return id, nil
}

func (id AccountID) String() string {
	return base58.Encode(id[:])
}

// IsZero returns whether the ID is the all-zero account
func (id AccountID) IsZero() bool {
	return id == AccountID{}
}
