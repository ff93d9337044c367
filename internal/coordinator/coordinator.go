// Package coordinator implements the session coordinator: the
// orchestration layer that owns sessions, accepts host and viewer attach
// requests, routes messages between them, enforces the capability and
// single-host invariants, and drives graceful shutdown (§4.5).
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shareterm/shareterm/internal/hostrpc"
	"github.com/shareterm/shareterm/internal/metrics"
	"github.com/shareterm/shareterm/internal/session"
	"github.com/shareterm/shareterm/internal/viewer"
)

const (
	syncInterval = 200 * time.Millisecond
	hostTimeout  = 5 * time.Second
	graceTimeout = 60 * time.Second
	authTimeout  = 5 * time.Second
)

// Mesh is the subset of the cross-replica registry the coordinator needs:
// it registers a session as owned by this replica on creation and
// deregisters it on termination. See internal/mesh.
type Mesh interface {
	Register(sessionID string)
	Deregister(sessionID string)
}

// live is the server-side bookkeeping for one active session, wrapping the
// session.Session data model with the host/viewer plumbing around it.
type live struct {
	sess *session.Session
	log  *slog.Logger

	mu          sync.Mutex
	host        hostrpc.ChannelServerStream
	hostCancel  context.CancelFunc
	lastHostMsg time.Time
	outbox      chan *hostrpc.ServerUpdate

	// nextShellID is the last shell ID the coordinator sent the host in a
	// Create frame. The shell itself is registered only once the host
	// confirms it, per §4.3's "visible to viewers only upon CreatedShell"
	// rule.
	nextShellID uint32

	chat     *chatRegistry
	lastChat *viewer.Hear

	// signals holds one pending WebRTC signaling message per viewer (Answer
	// or Migrated), drained by that viewer's poll loop. Per §12's P2P
	// fast path, these are low-frequency enough not to need their own
	// dedicated channel plumbing.
	signals map[uint32]*viewer.ServerMessage
}

// deliverSignal queues a WebRTC signaling frame for delivery to one
// viewer's poll loop, replacing any still-undelivered frame for that
// viewer — signaling state is latest-wins, like session metadata.
func (l *live) deliverSignal(userID uint32, msg *viewer.ServerMessage) {
	l.mu.Lock()
	if l.signals == nil {
		l.signals = make(map[uint32]*viewer.ServerMessage)
	}
	l.signals[userID] = msg
	l.mu.Unlock()
}

// takeSignal returns and clears the pending signaling frame for userID, if
// any.
func (l *live) takeSignal(userID uint32) *viewer.ServerMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.signals[userID]
	if !ok {
		return nil
	}
	delete(l.signals, userID)
	return msg
}

// Coordinator owns every live session on this replica.
type Coordinator struct {
	mesh           Mesh
	tokens         *hostrpc.TokenIssuer
	log            *slog.Logger
	overrideOrigin string

	mu       sync.Mutex
	sessions map[string]*live
}

// New returns a Coordinator. secret seeds the token issuer; it must match
// across every replica sharing a mesh so a capability token issued by one
// replica validates on the replica the host ends up attaching to.
// overrideOrigin, when non-empty, replaces whatever Origin a host reports
// in its OpenRequest when building the share URL (the server's
// --override-origin flag, per §6).
func New(secret string, mesh Mesh, overrideOrigin string, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		mesh:           mesh,
		tokens:         hostrpc.NewTokenIssuer(secret),
		log:            log,
		overrideOrigin: overrideOrigin,
		sessions:       make(map[string]*live),
	}
}

// Open creates a new session for a host's OpenRequest, per §6.
func (c *Coordinator) Open(ctx context.Context, req *hostrpc.OpenRequest) (*hostrpc.OpenResponse, error) {
	id := session.NewID()
	origin := req.Origin
	if c.overrideOrigin != "" {
		origin = c.overrideOrigin
	}
	var writeVerifier []byte
	if len(req.WritePasswordHash) > 0 {
		writeVerifier = req.WritePasswordHash
	}
	sess := session.New(id, req.EncryptedZeros, writeVerifier)
	sess.Name = req.Name

	l := &live{sess: sess, log: c.log.With("session", id), chat: newChatRegistry()}

	c.mu.Lock()
	c.sessions[id] = l
	c.mu.Unlock()
	if c.mesh != nil {
		c.mesh.Register(id)
	}
	metrics.SessionsActive.Inc()
	go c.sweep(id, l)

	token, err := c.tokens.Issue(id)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	url := origin + "/s/" + id
	l.log.Info("session opened", "origin", origin)
	return &hostrpc.OpenResponse{Name: id, Token: token, URL: url}, nil
}

// Close tears down a session authenticated by its capability token.
func (c *Coordinator) Close(ctx context.Context, req *hostrpc.CloseRequest) (*hostrpc.CloseResponse, error) {
	name, err := c.tokens.Validate(req.Token)
	if err != nil || name != req.Name {
		return nil, &Error{Kind: BadAuth, Msg: "invalid token"}
	}
	c.terminate(req.Name, "closed by host")
	return &hostrpc.CloseResponse{Exists: true}, nil
}

func (c *Coordinator) get(id string) *live {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// terminate drains and removes a session. Safe to call more than once.
func (c *Coordinator) terminate(id string, reason string) {
	c.mu.Lock()
	l, ok := c.sessions[id]
	if ok {
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	l.log.Info("session terminated", "reason", reason)
	l.sess.Terminate(reason)
	if c.mesh != nil {
		c.mesh.Deregister(id)
	}
	metrics.SessionsActive.Dec()
}

// TerminateAll drains every session owned by this replica, notifying each
// attached viewer with a Terminated frame before closing its connection.
// Called from the transport server's graceful shutdown, per §4.7.
func (c *Coordinator) TerminateAll(reason string) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.terminate(id, reason)
	}
}

// sweep runs the periodic reconciliation and timeout logic described in
// §4.5 for one session until it terminates.
func (c *Coordinator) sweep(id string, l *live) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	noHostSince := time.Now()
	for {
		select {
		case <-l.sess.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			host := l.host
			last := l.lastHostMsg
			l.mu.Unlock()

			if host == nil {
				if time.Since(noHostSince) > graceTimeout {
					c.terminate(id, "no host within grace period")
					return
				}
				continue
			}
			noHostSince = time.Now()

			if time.Since(last) > hostTimeout {
				l.log.Warn("host heartbeat timeout, dropping channel")
				l.mu.Lock()
				if l.hostCancel != nil {
					l.hostCancel()
				}
				l.host = nil
				l.mu.Unlock()
				continue
			}

			sync := buildSyncFrame(l.sess)
			if err := host.Send(&hostrpc.ServerUpdate{Sync: sync}); err != nil {
				l.log.Warn("sync send failed", "err", err)
			}
		}
	}
}

func buildSyncFrame(sess *session.Session) *hostrpc.SyncFrame {
	shells := sess.Shells()
	out := make([]hostrpc.SyncShell, 0, len(shells))
	for id, sh := range shells {
		out = append(out, hostrpc.SyncShell{ID: id, Offset: sh.Log.Offset()})
	}
	return &hostrpc.SyncFrame{Shells: out}
}
