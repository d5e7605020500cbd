// Package token produces the opaque bearer credentials used across the
// service: session ids, CSRF tokens and email verification codes.
package token

import (
	"crypto/rand"
	"encoding/hex"
)

// Size is the number of random bytes backing every token. At 32 bytes the
// collision probability is negligible; uniqueness is not otherwise enforced
// beyond the database unique index on session ids.
const Size = 32

// New returns a fresh hex-encoded random token. Failure of the system
// entropy source is unrecoverable, so it panics rather than returning an
// error callers could not meaningfully handle.
func New() string {
	buf := make([]byte, Size)
	if _, err := rand.Read(buf); err != nil {
		panic("token: entropy source unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
