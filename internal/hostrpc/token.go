package hostrpc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs and validates the opaque capability token Open returns.
// Deriving the signing key from the server's --secret keeps it stable
// across replicas without a shared database, following the shape of the
// wing capability JWTs the teacher issues per connected device.
type TokenIssuer struct {
	key *ecdsa.PrivateKey
}

type channelClaims struct {
	jwt.RegisteredClaims
	SessionName string `json:"sid"`
}

// NewTokenIssuer derives a deterministic ES256 key from secret so every
// replica sharing the same --secret can validate each other's tokens.
func NewTokenIssuer(secret string) *TokenIssuer {
	h := sha256.Sum256([]byte("shareterm-token-key:" + secret))
	// Read the private scalar straight from a fixed stream derived from the
	// secret, so the same secret always yields the same key pair, the way a
	// shared --secret must across replicas. A candidate outside the curve
	// order is skipped and the next 32 bytes of the stream are tried.
	r := deterministicReader(h[:])
	var scalar [32]byte
	for {
		r.Read(scalar[:])
		if key, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), scalar[:]); err == nil {
			return &TokenIssuer{key: key}
		}
	}
}

// Issue returns a capability token scoped to sessionName, valid for 24
// hours from issue (no durable revocation list — an expiry is the only
// invalidation mechanism, matching the no-durable-state non-goal).
func (t *TokenIssuer) Issue(sessionName string) (string, error) {
	claims := channelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionName: sessionName,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return tok.SignedString(t.key)
}

// Validate parses token and returns the session name it was issued for.
func (t *TokenIssuer) Validate(token string) (string, error) {
	claims := &channelClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return &t.key.PublicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("hostrpc: validate token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("hostrpc: token invalid")
	}
	return claims.SessionName, nil
}

// deterministicReader turns a fixed seed into an io.Reader suitable for
// ecdsa.GenerateKey, by expanding it with a simple counter-mode hash stream.
type seededReader struct {
	seed    []byte
	counter uint64
	buf     []byte
}

func deterministicReader(seed []byte) *seededReader {
	return &seededReader{seed: seed}
}

func (r *seededReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.buf) == 0 {
			h := sha256.New()
			h.Write(r.seed)
			var ctr [8]byte
			for i := 0; i < 8; i++ {
				ctr[i] = byte(r.counter >> (8 * i))
			}
			h.Write(ctr[:])
			r.counter++
			r.buf = h.Sum(nil)
		}
		c := copy(p[n:], r.buf)
		r.buf = r.buf[c:]
		n += c
	}
	return n, nil
}
