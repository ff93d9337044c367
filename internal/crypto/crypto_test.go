package crypto

import (
	"bytes"
	"testing"
)

func TestSegmentRoundTrip(t *testing.T) {
	key := DeriveKey("abc")
	cases := []struct {
		name      string
		streamNum uint64
		offset    uint64
		data      []byte
	}{
		{"aligned", ShellDataStream(1), 0, []byte("hello\n")},
		{"unaligned offset", ShellDataStream(1), 5, []byte("world")},
		{"spans blocks", ViewerInputStream, 10, bytes.Repeat([]byte{0x42}, 40)},
		{"large offset", ShellDataStream(7), 1 << 20, []byte("resumed")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ct, err := Segment(key, c.streamNum, c.offset, c.data)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			pt, err := Segment(key, c.streamNum, c.offset, ct)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if !bytes.Equal(pt, c.data) {
				t.Fatalf("round trip mismatch: got %q want %q", pt, c.data)
			}
			if len(ct) != len(c.data) {
				t.Fatalf("ciphertext length %d != plaintext length %d", len(ct), len(c.data))
			}
		})
	}
}

func TestSegmentRejectsZeroStream(t *testing.T) {
	key := DeriveKey("abc")
	if _, err := Segment(key, 0, 0, []byte("x")); err == nil {
		t.Fatal("expected error for streamNum 0")
	}
}

func TestVerifierCorrectness(t *testing.T) {
	key := DeriveKey("abc")
	v1 := Verifier(key)
	v2 := Verifier(DeriveKey("abc"))
	if !VerifyConstantTime(v1, v2) {
		t.Fatal("same secret should produce matching verifiers")
	}

	other := Verifier(DeriveKey("different"))
	if VerifyConstantTime(v1, other) {
		t.Fatal("different secret should not match verifier")
	}

	if VerifyConstantTime(v1, []byte("short")) {
		t.Fatal("mismatched length must not match")
	}
}

// Chunk split across a byte offset that isn't a multiple of the AES block
// size must decrypt identically whether encrypted in one call or two,
// since the viewer resumes mid-chunk after a ring trim.
func TestSegmentContinuation(t *testing.T) {
	key := DeriveKey("abc")
	stream := ShellDataStream(3)
	whole := []byte("0123456789abcdef0123456789abcdef")

	ctWhole, err := Segment(key, stream, 0, whole)
	if err != nil {
		t.Fatal(err)
	}

	const split = 13
	ctA, err := Segment(key, stream, 0, whole[:split])
	if err != nil {
		t.Fatal(err)
	}
	ctB, err := Segment(key, stream, split, whole[split:])
	if err != nil {
		t.Fatal(err)
	}

	got := append(append([]byte{}, ctA...), ctB...)
	if !bytes.Equal(got, ctWhole) {
		t.Fatalf("split encryption mismatch:\n got %x\nwant %x", got, ctWhole)
	}
}
