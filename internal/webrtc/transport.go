package webrtc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// WriteFn sends ciphertext bytes over a transport (the relayed gRPC
// channel, or a DataChannel).
type WriteFn func(data []byte) error

// SwappableWriter lets one shell's output atomically switch between the
// relayed gRPC channel and a DataChannel, without the goroutine producing
// shell output ever needing to know which is active.
type SwappableWriter struct {
	log *slog.Logger

	mu         sync.Mutex
	relayWrite WriteFn
	dcWrite    WriteFn
	mode       string // "relay" or "p2p"
}

// NewSwappableWriter creates a SwappableWriter backed by the relay write
// function, e.g. the host's outbound Data-frame sender.
func NewSwappableWriter(relayWrite WriteFn, log *slog.Logger) *SwappableWriter {
	if log == nil {
		log = slog.Default()
	}
	return &SwappableWriter{log: log, relayWrite: relayWrite, mode: "relay"}
}

// SetRelayWrite replaces the relay fallback function, e.g. after a
// reconnect opens a new underlying stream.
func (sw *SwappableWriter) SetRelayWrite(relayWrite WriteFn) {
	sw.mu.Lock()
	sw.relayWrite = relayWrite
	sw.mu.Unlock()
}

// Write sends ciphertext via whichever transport is currently active. The
// lock is held through the call so a migration can't interleave with it.
func (sw *SwappableWriter) Write(data []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	w := sw.dcWrite
	if w == nil {
		w = sw.relayWrite
	}
	return w(data)
}

// MigrateToDC atomically switches output to dc for the rest of this
// shell's traffic.
func (sw *SwappableWriter) MigrateToDC(userID, shellID uint32, dc *webrtc.DataChannel) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.mode == "p2p" {
		return fmt.Errorf("already migrated to p2p")
	}
	sw.dcWrite = dc.Send
	sw.mode = "p2p"
	sw.log.Info("shell migrated to data channel", "user", userID, "shell", shellID)
	return nil
}

// FallbackToRelay switches output back to the relay channel.
func (sw *SwappableWriter) FallbackToRelay(userID, shellID uint32) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.mode == "relay" {
		return
	}
	sw.dcWrite = nil
	sw.mode = "relay"
	sw.log.Info("shell fell back to relay", "user", userID, "shell", shellID)
}

// Mode reports the current transport ("relay" or "p2p").
func (sw *SwappableWriter) Mode() string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.mode
}
