// Package viewer implements the browser-facing WebSocket wire protocol:
// CBOR-encoded tagged messages over a connection accepted under
// /api/s/:id, per §4.4. The auth state machine and routing live in
// internal/coordinator, which owns the Session this protocol talks about;
// this package only knows how to frame and interpret messages.
package viewer

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Close codes, per §6.
const (
	CloseNormal       = 1000
	CloseOverload     = 1011
	CloseSessionOrAuth = 4404
	CloseInternal     = 4500
)

// ClientMessage is every frame a viewer may send. Exactly one field is
// populated — CBOR's map encoding keeps this compact since omitempty
// fields are skipped.
type ClientMessage struct {
	Authenticate *Authenticate `cbor:"authenticate,omitempty"`
	SetName      *string       `cbor:"set_name,omitempty"`
	SetCursor    *SetCursor    `cbor:"set_cursor,omitempty"`
	SetFocus     *SetFocus     `cbor:"set_focus,omitempty"`
	Create       *CreateShell  `cbor:"create,omitempty"`
	CloseShell   *CloseShell   `cbor:"close,omitempty"`
	Move         *Move         `cbor:"move,omitempty"`
	Data         *ClientData   `cbor:"data,omitempty"`
	Subscribe    *Subscribe    `cbor:"subscribe,omitempty"`
	Chat         *string       `cbor:"chat,omitempty"`
	Ping         *int64        `cbor:"ping,omitempty"`
	Offer        *Offer        `cbor:"offer,omitempty"`
	Fallback     *uint32       `cbor:"fallback,omitempty"`
}

// Offer proposes a WebRTC DataChannel for one shell's traffic, per §12's
// optional P2P fast path.
type Offer struct {
	ShellID uint32 `cbor:"shell_id"`
	SDP     string `cbor:"sdp"`
}

type Authenticate struct {
	EncryptedZeros      []byte `cbor:"r"`
	EncryptedZerosWrite []byte `cbor:"w,omitempty"`
}

type SetCursor struct {
	XY *[2]int32 `cbor:"xy,omitempty"`
}

type SetFocus struct {
	ShellID *uint32 `cbor:"shell_id,omitempty"`
}

type CreateShell struct {
	X int `cbor:"x"`
	Y int `cbor:"y"`
}

type CloseShell struct {
	ID uint32 `cbor:"id"`
}

// Move repositions or resizes a shell. A nil Winsize means "bring to front"
// — spec §9 flags this dual meaning as a candidate for a future Focus
// split; kept as-is per the source behavior.
type Move struct {
	ID      uint32   `cbor:"id"`
	Winsize *Winsize `cbor:"winsize,omitempty"`
}

type Winsize struct {
	X    int `cbor:"x"`
	Y    int `cbor:"y"`
	Rows int `cbor:"rows"`
	Cols int `cbor:"cols"`
}

type ClientData struct {
	ID         uint32 `cbor:"id"`
	Ciphertext []byte `cbor:"ciphertext"`
	Offset     int64  `cbor:"offset"`
}

// Subscribe's Chunknum counts chunks the viewer has already received, not
// bytes, so the server can map it directly onto the retained chunk list.
type Subscribe struct {
	ID       uint32 `cbor:"id"`
	Chunknum int    `cbor:"chunknum"`
}

// ServerMessage is every frame the server may send to a viewer.
type ServerMessage struct {
	Hello        *Hello        `cbor:"hello,omitempty"`
	InvalidAuth  bool          `cbor:"invalid_auth,omitempty"`
	Users        []UserEntry   `cbor:"users,omitempty"`
	UserDiff     *UserDiff     `cbor:"user_diff,omitempty"`
	Shells       []ShellEntry  `cbor:"shells,omitempty"`
	Chunks       *Chunks       `cbor:"chunks,omitempty"`
	Hear         *Hear         `cbor:"hear,omitempty"`
	ShellLatency *int64        `cbor:"shell_latency,omitempty"`
	Pong         *int64        `cbor:"pong,omitempty"`
	Error        *string       `cbor:"error,omitempty"`
	Answer       *Answer       `cbor:"answer,omitempty"`
	Migrated     *uint32       `cbor:"migrated,omitempty"`
	Terminated   *string       `cbor:"terminated,omitempty"`
}

// Answer carries the host's SDP answer back to the viewer that sent Offer.
type Answer struct {
	ShellID uint32 `cbor:"shell_id"`
	SDP     string `cbor:"sdp"`
}

type Hello struct {
	UserID     uint32 `cbor:"user_id"`
	ServerName string `cbor:"server_name"`
}

type UserEntry struct {
	ID   uint32   `cbor:"id"`
	User UserData `cbor:"user"`
}

type UserData struct {
	Name     string    `cbor:"name"`
	Cursor   *[2]int32 `cbor:"cursor,omitempty"`
	Focus    *uint32   `cbor:"focus,omitempty"`
	CanWrite bool      `cbor:"can_write"`
}

// UserDiff announces a join (User non-nil) or departure (User nil).
type UserDiff struct {
	ID   uint32    `cbor:"id"`
	User *UserData `cbor:"user,omitempty"`
}

type ShellEntry struct {
	ID      uint32  `cbor:"id"`
	Winsize Winsize `cbor:"winsize"`
}

type Chunks struct {
	ShellID     uint32   `cbor:"shell_id"`
	StartOffset int64    `cbor:"start_offset"`
	Ciphertexts [][]byte `cbor:"ciphertexts"`
}

type Hear struct {
	UserID uint32 `cbor:"user_id"`
	Name   string `cbor:"name"`
	Text   string `cbor:"text"`
}

// MaxChatLen caps Chat text, per §4.4 ("text is length-capped; no
// persistence").
const MaxChatLen = 2048

// Offer/Answer/Migrated/Fallback implement the optional P2P fast-path
// signaling supplement (§12): a viewer proposes a WebRTC DataChannel over
// the same WebSocket it already authenticated on, the coordinator brokers
// the SDP exchange with the host's PeerManager, and once the DataChannel
// opens both sides swap shell traffic onto it until one side falls back.

// Encode serializes v as CBOR.
func Encode(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("viewer: encode: %w", err)
	}
	return data, nil
}

// Decode deserializes CBOR bytes into v.
func Decode(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("viewer: decode: %w", err)
	}
	return nil
}
