// Package password hashes and verifies account secrets with bcrypt.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength is the longest secret bcrypt will accept, in bytes.
const MaxLength = 72

// ErrTooLong is returned by Hash for secrets longer than MaxLength bytes.
var ErrTooLong = bcrypt.ErrPasswordTooLong

type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher returns a Hasher using cost, or bcrypt.DefaultCost when cost is
// out of bcrypt's accepted range.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	// Digest used to equalize timing when no account matches a login.
	dummy, err := bcrypt.GenerateFromPassword([]byte("netmon-timing-equalizer"), cost)
	if err != nil {
		panic("password: generate dummy digest: " + err.Error())
	}

	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a self-contained salted digest of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrTooLong
		}
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plain matches digest. Malformed digests never match.
func (h *Hasher) Verify(plain string, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// VerifyDummy spends one comparison against a fixed digest.
func (h *Hasher) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
