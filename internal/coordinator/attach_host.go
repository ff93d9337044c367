package coordinator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shareterm/shareterm/internal/hostrpc"
	"github.com/shareterm/shareterm/internal/metrics"
	"github.com/shareterm/shareterm/internal/session"
	"github.com/shareterm/shareterm/internal/viewer"
)

const outboxSize = 256

// Channel implements hostrpc.Server, letting Coordinator be registered
// directly against the gRPC service descriptor.
func (c *Coordinator) Channel(stream hostrpc.ChannelServerStream) error {
	return c.AttachHost(stream)
}

// AttachHost handles one host's Channel RPC for its whole lifetime,
// enforcing the single-host invariant (§4.5) and dispatching frames in
// both directions until the stream ends.
func (c *Coordinator) AttachHost(stream hostrpc.ChannelServerStream) error {
	first, err := stream.Recv()
	if err != nil {
		return fmt.Errorf("recv hello: %w", err)
	}
	if first.Hello == nil {
		return &Error{Kind: ProtocolError, Msg: "first frame must be Hello"}
	}

	name, err := c.tokens.Validate(first.Hello.Token)
	if err != nil || name != first.Hello.SessionName {
		return &Error{Kind: BadAuth, Msg: "invalid token"}
	}

	l := c.get(name)
	if l == nil {
		return &Error{Kind: NotFound, Msg: "session not found"}
	}

	l.mu.Lock()
	if l.host != nil {
		l.mu.Unlock()
		return &Error{Kind: AlreadyAttached, Msg: "session already has a host"}
	}
	ctx, cancel := context.WithCancel(stream.Context())
	l.host = stream
	l.hostCancel = cancel
	l.lastHostMsg = time.Now()
	l.outbox = make(chan *hostrpc.ServerUpdate, outboxSize)
	outbox := l.outbox
	l.mu.Unlock()

	l.log.Info("host attached")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbox:
				if err := stream.Send(msg); err != nil {
					l.log.Warn("host send failed", "err", err)
					cancel()
					return
				}
			}
		}
	}()

	defer func() {
		l.mu.Lock()
		if l.host == stream {
			l.host = nil
		}
		l.mu.Unlock()
		cancel()
		l.log.Info("host detached")
	}()

	for {
		frame, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}
		l.mu.Lock()
		l.lastHostMsg = time.Now()
		l.mu.Unlock()
		c.handleHostFrame(l, frame)
	}
}

func (c *Coordinator) handleHostFrame(l *live, frame *hostrpc.ClientUpdate) {
	switch {
	case frame.Data != nil:
		sh := l.sess.Shell(frame.Data.ShellID)
		if sh == nil {
			return
		}
		sh.Log.Append(frame.Data.Ciphertext)
		metrics.BytesRelayed.Add(float64(len(frame.Data.Ciphertext)))

	case frame.CreatedShell != nil:
		f := frame.CreatedShell
		sh := l.sess.Shell(f.ID)
		if sh == nil {
			sh = l.sess.CreateShell(f.ID, session.Window{Rows: f.Rows, Cols: f.Cols})
			metrics.ShellsActive.Inc()
		}
		l.sess.PublishShell()

	case frame.ClosedShell != nil:
		if l.sess.Shell(frame.ClosedShell.ID) != nil {
			metrics.ShellsActive.Dec()
		}
		l.sess.RemoveShell(frame.ClosedShell.ID)

	case frame.Pong != nil:
		// No latency is computed from Pong; like every host frame, it only
		// refreshes lastHostMsg in AttachHost's receive loop.

	case frame.Error != nil:
		l.log.Warn("host reported error", "msg", frame.Error.Message)

	case frame.Answer != nil:
		l.deliverSignal(frame.Answer.UserID, &viewer.ServerMessage{
			Answer: &viewer.Answer{ShellID: frame.Answer.ShellID, SDP: frame.Answer.SDP},
		})

	case frame.Migrated != nil:
		l.deliverSignal(frame.Migrated.UserID, &viewer.ServerMessage{Migrated: &frame.Migrated.ShellID})
	}
}

// sendToHost enqueues msg for delivery to the attached host, dropping it if
// the outbox is full rather than blocking the caller — this keeps a stuck
// host from stalling viewer-facing goroutines (§5 backpressure policy).
func (l *live) sendToHost(msg *hostrpc.ServerUpdate) {
	l.mu.Lock()
	outbox := l.outbox
	l.mu.Unlock()
	if outbox == nil {
		return
	}
	select {
	case outbox <- msg:
	default:
		l.log.Warn("host outbox full, dropping frame")
	}
}
