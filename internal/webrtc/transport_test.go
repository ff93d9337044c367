package webrtc

import (
	"bytes"
	"errors"
	"testing"
)

func TestSwappableWriterDefaultsToRelay(t *testing.T) {
	var got []byte
	sw := NewSwappableWriter(func(data []byte) error {
		got = append([]byte{}, data...)
		return nil
	}, nil)

	if sw.Mode() != "relay" {
		t.Fatalf("Mode() = %q, want relay", sw.Mode())
	}
	if err := sw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("relay received %q, want %q", got, "hello")
	}
}

func TestSwappableWriterFallbackIsNoopWhenAlreadyRelay(t *testing.T) {
	sw := NewSwappableWriter(func([]byte) error { return nil }, nil)
	sw.FallbackToRelay(1, 2)
	if sw.Mode() != "relay" {
		t.Fatalf("Mode() = %q, want relay", sw.Mode())
	}
}

func TestSwappableWriterRelayErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	sw := NewSwappableWriter(func([]byte) error { return wantErr }, nil)
	if err := sw.Write([]byte("x")); !errors.Is(err, wantErr) {
		t.Fatalf("Write() error = %v, want %v", err, wantErr)
	}
}

func TestSwappableWriterSetRelayWrite(t *testing.T) {
	var calls int
	sw := NewSwappableWriter(func([]byte) error { calls++; return nil }, nil)
	sw.Write([]byte("a"))

	var secondCalls int
	sw.SetRelayWrite(func([]byte) error { secondCalls++; return nil })
	sw.Write([]byte("b"))

	if calls != 1 || secondCalls != 1 {
		t.Fatalf("expected one call on each relay function, got %d and %d", calls, secondCalls)
	}
}
