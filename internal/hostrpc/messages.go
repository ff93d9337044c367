// Package hostrpc implements the host-facing gRPC channel: a long-lived
// bidirectional stream plus the Open/Close unary calls, per §4.3 and §6.
// Frames are plain Go structs carried over grpc-go's codec plugin
// mechanism instead of generated protobuf messages — see codec.go.
package hostrpc

// OpenRequest is the host's initial unary call to claim a session.
type OpenRequest struct {
	Origin            string `json:"origin"`
	EncryptedZeros    []byte `json:"encrypted_zeros"`
	Name              string `json:"name,omitempty"`
	WritePasswordHash []byte `json:"write_password_hash,omitempty"`
	EnableReaders     bool   `json:"enable_readers,omitempty"`
}

// OpenResponse returns the session's public identity and the capability
// token the host must present on Channel.
type OpenResponse struct {
	Name  string `json:"name"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CloseRequest authenticates a session teardown with the same token Open
// returned.
type CloseRequest struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// CloseResponse reports whether the named session existed.
type CloseResponse struct {
	Exists bool `json:"exists"`
}

// ClientUpdate is every frame the host may send on Channel, per §4.3.
// Exactly one field is populated; this is the hand-written analogue of a
// protobuf oneof.
type ClientUpdate struct {
	Hello        *HelloFrame        `json:"hello,omitempty"`
	Data         *DataFrame         `json:"data,omitempty"`
	CreatedShell *CreatedShellFrame `json:"created_shell,omitempty"`
	ClosedShell  *ClosedShellFrame  `json:"closed_shell,omitempty"`
	Pong         *PongFrame         `json:"pong,omitempty"`
	Error        *ErrorFrame        `json:"error,omitempty"`
	Answer       *AnswerFrame       `json:"answer,omitempty"`
	Migrated     *MigratedFrame     `json:"migrated,omitempty"`
}

// AnswerFrame carries the host's WebRTC SDP answer back to the coordinator
// for relay to the originating viewer, per §12's P2P fast path.
type AnswerFrame struct {
	UserID  uint32 `json:"user_id"`
	ShellID uint32 `json:"shell_id"`
	SDP     string `json:"sdp"`
}

// MigratedFrame tells the coordinator a shell's traffic has moved onto a
// DataChannel for userID, so the viewer can be notified.
type MigratedFrame struct {
	UserID  uint32 `json:"user_id"`
	ShellID uint32 `json:"shell_id"`
}

type HelloFrame struct {
	SessionName string `json:"session_name"`
	Token       string `json:"token"`
}

type DataFrame struct {
	ShellID    uint32 `json:"shell_id"`
	Ciphertext []byte `json:"ciphertext"`
	Seq        uint64 `json:"seq"`
}

type CreatedShellFrame struct {
	ID   uint32 `json:"id"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

type ClosedShellFrame struct {
	ID uint32 `json:"id"`
}

type PongFrame struct {
	Timestamp int64 `json:"timestamp"`
}

type ErrorFrame struct {
	Message string `json:"message"`
}

// ServerUpdate is every frame the server may send on Channel, per §4.3.
type ServerUpdate struct {
	Input    *InputFrame    `json:"input,omitempty"`
	Create   *CreateFrame   `json:"create,omitempty"`
	Close    *CloseFrame    `json:"close,omitempty"`
	Resize   *ResizeFrame   `json:"resize,omitempty"`
	Sync     *SyncFrame     `json:"sync,omitempty"`
	Ping     *PingFrame     `json:"ping,omitempty"`
	Offer    *OfferFrame    `json:"offer,omitempty"`
	Fallback *FallbackFrame `json:"fallback,omitempty"`
}

// OfferFrame relays a viewer's WebRTC SDP offer to the host that owns the
// session, per §12's P2P fast path.
type OfferFrame struct {
	UserID  uint32 `json:"user_id"`
	ShellID uint32 `json:"shell_id"`
	SDP     string `json:"sdp"`
}

// FallbackFrame tells the host a viewer has asked to fall back from the
// DataChannel to the relayed gRPC channel for a shell.
type FallbackFrame struct {
	UserID  uint32 `json:"user_id"`
	ShellID uint32 `json:"shell_id"`
}

type InputFrame struct {
	ShellID    uint32 `json:"shell_id"`
	Ciphertext []byte `json:"ciphertext"`
	Offset     int64  `json:"offset"`
}

type CreateFrame struct {
	ID   uint32 `json:"id"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

type CloseFrame struct {
	ID uint32 `json:"id"`
}

type ResizeFrame struct {
	ID   uint32 `json:"id"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// SyncShell is one (id, offset) pair in a reconciliation frame.
type SyncShell struct {
	ID     uint32 `json:"id"`
	Offset int64  `json:"offset"`
}

type SyncFrame struct {
	Shells []SyncShell `json:"shells"`
}

type PingFrame struct {
	Timestamp int64 `json:"timestamp"`
}
