package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/shareterm/shareterm/internal/crypto"
	"github.com/shareterm/shareterm/internal/hostrpc"
	"github.com/shareterm/shareterm/internal/metrics"
	"github.com/shareterm/shareterm/internal/session"
	"github.com/shareterm/shareterm/internal/viewer"
)

const pollInterval = 50 * time.Millisecond

type viewerState struct {
	userID   uint32
	canWrite bool

	mu   sync.Mutex
	subs map[uint32]*session.ChunkCursor

	lastUsers map[uint32]session.User
}

// AttachViewer drives one viewer WebSocket for its entire lifetime: the
// AwaitingAuth → Active → Closed state machine of §4.4.
func (c *Coordinator) AttachViewer(ctx context.Context, sessionID string, conn *viewer.Conn) error {
	l := c.get(sessionID)
	if l == nil {
		conn.Close(websocket.StatusCode(viewer.CloseSessionOrAuth), "session not found")
		return &Error{Kind: NotFound, Msg: "session not found"}
	}

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	first, err := conn.ReadClient(authCtx)
	cancel()
	if err != nil || first.Authenticate == nil {
		conn.Close(websocket.StatusCode(viewer.CloseSessionOrAuth), "authentication required")
		return &Error{Kind: BadAuth, Msg: "no Authenticate frame"}
	}

	if !crypto.VerifyConstantTime(l.sess.ReadVerifier, first.Authenticate.EncryptedZeros) {
		conn.WriteServer(ctx, &viewer.ServerMessage{InvalidAuth: true})
		conn.Close(websocket.StatusCode(viewer.CloseSessionOrAuth), "bad auth")
		return &Error{Kind: BadAuth, Msg: "verifier mismatch"}
	}

	canWrite := l.sess.WriteVerifier == nil
	if !canWrite && len(first.Authenticate.EncryptedZerosWrite) > 0 {
		canWrite = crypto.VerifyConstantTime(l.sess.WriteVerifier, first.Authenticate.EncryptedZerosWrite)
	}

	u := l.sess.AddUser("")
	if canWrite {
		l.sess.GrantWrite(u.ID)
	}

	vs := &viewerState{userID: u.ID, canWrite: canWrite, subs: make(map[uint32]*session.ChunkCursor)}

	if err := conn.WriteServer(ctx, &viewer.ServerMessage{Hello: &viewer.Hello{UserID: u.ID, ServerName: l.sess.Name}}); err != nil {
		l.sess.RemoveUser(u.ID)
		return err
	}
	c.sendShellsSnapshot(ctx, l, conn)

	metrics.ViewersActive.Inc()
	done := make(chan struct{})
	go c.viewerPollLoop(ctx, l, conn, vs, done)
	defer close(done)
	defer metrics.ViewersActive.Dec()
	defer l.sess.RemoveUser(u.ID)

	for {
		msg, err := conn.ReadClient(ctx)
		if err != nil {
			return nil
		}
		if closeErr := c.dispatchViewerMessage(ctx, l, conn, vs, msg); closeErr != nil {
			return closeErr
		}
	}
}

func (c *Coordinator) dispatchViewerMessage(ctx context.Context, l *live, conn *viewer.Conn, vs *viewerState, msg *viewer.ClientMessage) error {
	writeGated := msg.Create != nil || msg.CloseShell != nil || msg.Move != nil || msg.Data != nil
	if writeGated && !vs.canWrite {
		errMsg := "read-only"
		conn.WriteServer(ctx, &viewer.ServerMessage{Error: &errMsg})
		return nil
	}

	switch {
	case msg.SetName != nil:
		l.sess.SetName(vs.userID, *msg.SetName)

	case msg.SetCursor != nil:
		l.sess.SetCursor(vs.userID, msg.SetCursor.XY)

	case msg.SetFocus != nil:
		l.sess.SetFocus(vs.userID, msg.SetFocus.ShellID)

	case msg.Create != nil:
		c.createShellFromViewer(l)

	case msg.CloseShell != nil:
		l.sendToHost(&hostrpc.ServerUpdate{Close: &hostrpc.CloseFrame{ID: msg.CloseShell.ID}})

	case msg.Move != nil:
		c.handleMove(l, msg.Move)

	case msg.Data != nil:
		l.sendToHost(&hostrpc.ServerUpdate{Input: &hostrpc.InputFrame{
			ShellID:    msg.Data.ID,
			Ciphertext: msg.Data.Ciphertext,
			Offset:     msg.Data.Offset,
		}})

	case msg.Subscribe != nil:
		sh := l.sess.Shell(msg.Subscribe.ID)
		if sh == nil {
			return nil
		}
		offset := sh.Log.OffsetForChunknum(msg.Subscribe.Chunknum)
		cur := sh.Log.SubscribeFrom(offset)
		vs.mu.Lock()
		vs.subs[msg.Subscribe.ID] = cur
		vs.mu.Unlock()
		// Flush immediately so the viewer doesn't wait a full poll tick for
		// its first backfill Chunks frame.
		if start, chunks, _ := cur.Poll(); len(chunks) > 0 {
			conn.WriteServer(ctx, &viewer.ServerMessage{Chunks: &viewer.Chunks{
				ShellID: msg.Subscribe.ID, StartOffset: start, Ciphertexts: chunks,
			}})
		}

	case msg.Chat != nil:
		text := *msg.Chat
		if len(text) > viewer.MaxChatLen {
			text = text[:viewer.MaxChatLen]
		}
		u := l.sess.User(vs.userID)
		name := ""
		if u != nil {
			name = u.Name
		}
		l.chat.record(vs.userID, name, text)
		c.broadcastChat(ctx, l, vs.userID, name, text)

	case msg.Ping != nil:
		conn.WriteServer(ctx, &viewer.ServerMessage{Pong: msg.Ping})

	case msg.Offer != nil:
		l.sendToHost(&hostrpc.ServerUpdate{Offer: &hostrpc.OfferFrame{
			UserID: vs.userID, ShellID: msg.Offer.ShellID, SDP: msg.Offer.SDP,
		}})

	case msg.Fallback != nil:
		l.sendToHost(&hostrpc.ServerUpdate{Fallback: &hostrpc.FallbackFrame{
			UserID: vs.userID, ShellID: *msg.Fallback,
		}})
	}
	return nil
}

func (c *Coordinator) handleMove(l *live, m *viewer.Move) {
	sh := l.sess.Shell(m.ID)
	if sh == nil {
		return
	}
	if m.Winsize == nil {
		// "Bring to front" — no z-order state kept server-side beyond
		// notifying viewers that something about the shell changed.
		l.sess.PublishShell()
		return
	}
	sh.Window.X = m.Winsize.X
	sh.Window.Y = m.Winsize.Y
	sh.Resize(m.Winsize.Rows, m.Winsize.Cols)
	l.sendToHost(&hostrpc.ServerUpdate{Resize: &hostrpc.ResizeFrame{ID: m.ID, Rows: sh.Window.Rows, Cols: sh.Window.Cols}})
	l.sess.PublishShell()
}

func (c *Coordinator) createShellFromViewer(l *live) {
	l.mu.Lock()
	l.nextShellID++
	id := l.nextShellID
	l.mu.Unlock()
	l.sendToHost(&hostrpc.ServerUpdate{Create: &hostrpc.CreateFrame{ID: id, Rows: session.MinRows, Cols: session.MinCols}})
}

func (c *Coordinator) broadcastChat(ctx context.Context, l *live, userID uint32, name, text string) {
	// Chat has no table state to diff against, so the latest message is
	// kept in l.lastChat and each viewer poll loop sends it on its next
	// tick. Delivery is latest-wins: a message replaced before a viewer's
	// tick is not sent to that viewer.
	l.sess.MetaChanged.Notify()
	l.mu.Lock()
	l.lastChat = &viewer.Hear{UserID: userID, Name: name, Text: text}
	l.mu.Unlock()
}

func (c *Coordinator) sendShellsSnapshot(ctx context.Context, l *live, conn *viewer.Conn) {
	shells := l.sess.Shells()
	entries := make([]viewer.ShellEntry, 0, len(shells))
	for id, sh := range shells {
		entries = append(entries, viewer.ShellEntry{ID: id, Winsize: viewer.Winsize{
			X: sh.Window.X, Y: sh.Window.Y, Rows: sh.Window.Rows, Cols: sh.Window.Cols,
		}})
	}
	conn.WriteServer(ctx, &viewer.ServerMessage{Shells: entries})

	users := l.sess.Users()
	uentries := make([]viewer.UserEntry, 0, len(users))
	for id, u := range users {
		uentries = append(uentries, viewer.UserEntry{ID: id, User: toUserData(u)})
	}
	conn.WriteServer(ctx, &viewer.ServerMessage{Users: uentries})
}

func toUserData(u *session.User) viewer.UserData {
	return viewer.UserData{Name: u.Name, Cursor: u.Cursor, Focus: u.Focus, CanWrite: u.CanWrite}
}

// viewerPollLoop flushes subscribed shell data and presence/chat updates.
// A short poll tick multiplexes an arbitrary, dynamically-changing set of
// shell subscriptions without a select-case per subscription.
func (c *Coordinator) viewerPollLoop(ctx context.Context, l *live, conn *viewer.Conn, vs *viewerState, done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastChatSent *viewer.Hear
	metaGen, _ := l.sess.MetaChanged.Generation()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-l.sess.Done():
			reason := l.sess.TerminationReason()
			conn.WriteServer(ctx, &viewer.ServerMessage{Terminated: &reason})
			conn.Close(websocket.StatusCode(viewer.CloseNormal), reason)
			return
		case <-ticker.C:
			vs.mu.Lock()
			subs := make(map[uint32]*session.ChunkCursor, len(vs.subs))
			for k, v := range vs.subs {
				subs[k] = v
			}
			vs.mu.Unlock()
			for id, cur := range subs {
				start, chunks, _ := cur.Poll()
				if len(chunks) == 0 {
					continue
				}
				conn.WriteServer(ctx, &viewer.ServerMessage{Chunks: &viewer.Chunks{
					ShellID: id, StartOffset: start, Ciphertexts: chunks,
				}})
			}

			// Resend the shell table whenever the session metadata changed,
			// so shell creation, moves, and removals reach the viewer.
			if gen, _ := l.sess.MetaChanged.Generation(); gen != metaGen {
				metaGen = gen
				c.sendShellsSnapshot(ctx, l, conn)
			}

			c.flushPresenceDiff(ctx, l, conn, vs)

			l.mu.Lock()
			chat := l.lastChat
			l.mu.Unlock()
			if chat != nil && chat != lastChatSent {
				conn.WriteServer(ctx, &viewer.ServerMessage{Hear: chat})
				lastChatSent = chat
			}

			if sig := l.takeSignal(vs.userID); sig != nil {
				conn.WriteServer(ctx, sig)
			}
		}
	}
}

func (c *Coordinator) flushPresenceDiff(ctx context.Context, l *live, conn *viewer.Conn, vs *viewerState) {
	current := l.sess.Users()
	vs.mu.Lock()
	last := vs.lastUsers
	if last == nil {
		last = make(map[uint32]session.User)
	}
	next := make(map[uint32]session.User, len(current))
	for id, u := range current {
		next[id] = *u
	}
	vs.lastUsers = next
	vs.mu.Unlock()

	for id, u := range current {
		old, existed := last[id]
		if !existed || old != *u {
			data := toUserData(u)
			conn.WriteServer(ctx, &viewer.ServerMessage{UserDiff: &viewer.UserDiff{ID: id, User: &data}})
		}
	}
	for id := range last {
		if _, ok := current[id]; !ok {
			conn.WriteServer(ctx, &viewer.ServerMessage{UserDiff: &viewer.UserDiff{ID: id}})
		}
	}
}
