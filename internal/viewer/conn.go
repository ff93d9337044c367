package viewer

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Conn wraps a websocket.Conn, framing every message as binary CBOR.
type Conn struct {
	ws *websocket.Conn
}

// NewConn wraps an already-accepted WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(1 << 20)
	return &Conn{ws: ws}
}

// ReadClient blocks for the next client frame.
func (c *Conn) ReadClient(ctx context.Context) (*ClientMessage, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewer: read: %w", err)
	}
	msg := new(ClientMessage)
	if err := Decode(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// WriteServer sends a server frame.
func (c *Conn) WriteServer(ctx context.Context, msg *ServerMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

// Close closes the underlying WebSocket with the given code and reason.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

// CloseNow closes without a clean handshake.
func (c *Conn) CloseNow() error { return c.ws.CloseNow() }
