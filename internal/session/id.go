package session

import (
	"github.com/google/uuid"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewID returns a 10-character URL-safe random session identifier, derived
// from a fresh UUID's entropy rather than reading crypto/rand directly.
func NewID() string {
	u := uuid.New()
	return base62From(u[:], 10)
}

func base62From(entropy []byte, length int) string {
	out := make([]byte, length)
	// Treat the UUID bytes as a big-endian integer and repeatedly divide it
	// by len(alphabet), emitting each remainder as one output character, so
	// 10 characters carry about 60 bits of the UUID's entropy.
	acc := make([]byte, len(entropy))
	copy(acc, entropy)
	base := len(idAlphabet)
	for i := 0; i < length; i++ {
		rem := 0
		for j := 0; j < len(acc); j++ {
			cur := rem<<8 | int(acc[j])
			acc[j] = byte(cur / base)
			rem = cur % base
		}
		out[i] = idAlphabet[rem]
	}
	return string(out)
}
