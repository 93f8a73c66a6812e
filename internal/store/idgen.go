package store

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// newID mints an internal primary key. UUIDs are opaque by design; they
// are never exposed as a channel's short external id.
func newID() string { return uuid.NewString() }

const externalIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newExternalID mints an 8-character alphanumeric short id for a
// channel, per §3's "8-24 alphanumeric chars" requirement. Callers
// retry on collision.
func newExternalID() (string, error) {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(externalIDAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = externalIDAlphabet[n.Int64()]
	}
	return string(buf), nil
}
