// Package crypto implements the key derivation and segment cipher shared by
// hosts and viewers. The server only ever sees ciphertext and a 16-byte
// verifier; its sole use of this package is VerifyConstantTime.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// fixedSalt is hard-coded so a host and every viewer holding the same
// passphrase derive the same key without ever transmitting a salt.
var fixedSalt = []byte("shareterm-v1-salt")

const (
	argonTime    = 2
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 1
	keyLen       = 16

	// VerifierStream is the reserved stream number for the authentication
	// zero-block verifier. MUST never be used to encrypt real data.
	VerifierStream uint64 = 0

	// ShellDataStreamBase is OR'd with a shell ID to form the stream number
	// for server-to-viewer shell output.
	ShellDataStreamBase uint64 = 0x1_0000_0000

	// ViewerInputStream is the single stream number used for all
	// viewer-to-host keystroke traffic.
	ViewerInputStream uint64 = 0x2_0000_0000
)

// Key is a derived 128-bit session key.
type Key [keyLen]byte

// DeriveKey runs Argon2id over secret using the fixed salt and fixed cost
// parameters, producing the 128-bit session key.
func DeriveKey(secret string) Key {
	raw := argon2.IDKey([]byte(secret), fixedSalt, argonTime, argonMemory, argonThreads, keyLen)
	var k Key
	copy(k[:], raw)
	return k
}

// ShellDataStream returns the reserved stream number for a shell's output.
func ShellDataStream(shellID uint32) uint64 {
	return ShellDataStreamBase | uint64(shellID)
}

// Segment encrypts (or decrypts — AES-CTR is its own inverse) buf at the
// given (streamNum, offset) coordinate. Rejects streamNum == 0: that value
// is reserved for the authentication verifier, which is computed by
// Verifier instead.
func Segment(key Key, streamNum uint64, offset uint64, buf []byte) ([]byte, error) {
	if streamNum == VerifierStream {
		return nil, fmt.Errorf("crypto: streamNum 0 is reserved for the verifier")
	}
	return segment(key, streamNum, offset, buf)
}

func segment(key Key, streamNum uint64, offset uint64, buf []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	blockOffset := offset / aes.BlockSize
	intraBlock := int(offset % aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[0:8], streamNum)
	binary.BigEndian.PutUint64(iv[8:16], blockOffset)

	stream := cipher.NewCTR(block, iv)

	// Pad the front so the keystream aligns to the block boundary the
	// requested offset falls inside, then discard the padding bytes.
	padded := make([]byte, intraBlock+len(buf))
	copy(padded[intraBlock:], buf)
	out := make([]byte, len(padded))
	stream.XORKeyStream(out, padded)
	return out[intraBlock:], nil
}

// Verifier returns encrypt(streamNum=0, zero16) for key, proving key
// knowledge to a peer without disclosing the key itself.
func Verifier(key Key) []byte {
	zero := make([]byte, keyLen)
	v, err := segment(key, VerifierStream, 0, zero)
	if err != nil {
		// aes.NewCipher only fails on bad key length, and Key is fixed-size.
		panic(fmt.Sprintf("crypto: verifier: %v", err))
	}
	return v
}

// VerifyConstantTime reports whether candidate matches the expected
// verifier, using a constant-time comparison to avoid timing side channels.
func VerifyConstantTime(expected, candidate []byte) bool {
	if len(expected) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, candidate) == 1
}
