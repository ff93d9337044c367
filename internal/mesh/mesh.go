// Package mesh implements the cross-replica owner registry described in
// §4.6: for a session ID, which replica currently hosts it. Generalized
// from the teacher's gossip/peer-directory pattern (internal/relay/gossip.go,
// peers.go, wing_map.go) down to the one fact the coordinator actually
// needs — ownership is advisory, not consensus (§9), so a plain
// replicated map with last-writer-wins merge is enough; no Raft, no
// durable store.
package mesh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Peer is a remote replica this mesh gossips with.
type Peer interface {
	// Push sends this replica's current ownership table to the peer.
	Push(ctx context.Context, replicaID string, owned []string) error
}

// Registry tracks, for every session ID this process knows about, which
// replica owns it.
type Registry struct {
	replicaID string
	log       *slog.Logger

	mu     sync.RWMutex
	owners map[string]ownerEntry

	peersMu sync.Mutex
	peers   map[string]Peer
}

type ownerEntry struct {
	replica string
	seen    time.Time
}

// New returns a Registry for this replica.
func New(replicaID string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		replicaID: replicaID,
		log:       log,
		owners:    make(map[string]ownerEntry),
		peers:     make(map[string]Peer),
	}
}

// Register marks sessionID as owned by this replica, per the coordinator's
// interface requirement (coordinator.Mesh).
func (r *Registry) Register(sessionID string) {
	r.mu.Lock()
	r.owners[sessionID] = ownerEntry{replica: r.replicaID, seen: time.Now()}
	r.mu.Unlock()
}

// Deregister removes sessionID's ownership entry.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	delete(r.owners, sessionID)
	r.mu.Unlock()
}

// Owner returns the replica ID owning sessionID and whether it is known at
// all. A viewer landing on a replica where Owner returns ("", false) should
// receive NotFound, per §9's benign-race handling.
func (r *Registry) Owner(sessionID string) (replica string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.owners[sessionID]
	if !ok {
		return "", false
	}
	return e.replica, true
}

// IsLocal reports whether this replica owns sessionID.
func (r *Registry) IsLocal(sessionID string) bool {
	replica, ok := r.Owner(sessionID)
	return ok && replica == r.replicaID
}

// AddPeer registers a remote replica to gossip ownership state with.
func (r *Registry) AddPeer(replicaID string, p Peer) {
	r.peersMu.Lock()
	r.peers[replicaID] = p
	r.peersMu.Unlock()
}

// Ingest merges ownership facts received from a peer's gossip push. Later
// timestamps win; ownership is advisory so a brief disagreement during
// hand-off is expected and resolved by the next gossip round.
func (r *Registry) Ingest(fromReplica string, owned []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, id := range owned {
		cur, exists := r.owners[id]
		if !exists || cur.replica != fromReplica {
			r.owners[id] = ownerEntry{replica: fromReplica, seen: now}
		} else {
			cur.seen = now
			r.owners[id] = cur
		}
	}
}

// GossipLoop periodically pushes this replica's locally-owned session IDs
// to every known peer, until ctx is cancelled.
func (r *Registry) GossipLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pushToPeers(ctx)
		}
	}
}

func (r *Registry) pushToPeers(ctx context.Context) {
	r.mu.RLock()
	owned := make([]string, 0, len(r.owners))
	for id, e := range r.owners {
		if e.replica == r.replicaID {
			owned = append(owned, id)
		}
	}
	r.mu.RUnlock()

	r.peersMu.Lock()
	peers := make(map[string]Peer, len(r.peers))
	for k, v := range r.peers {
		peers[k] = v
	}
	r.peersMu.Unlock()

	for id, p := range peers {
		if err := p.Push(ctx, r.replicaID, owned); err != nil {
			r.log.Warn("gossip push failed", "peer", id, "err", err)
		}
	}
}

// sweepStale drops entries this replica hasn't heard reaffirmed (from
// itself or any peer) within maxAge, so a replica that crashed without
// deregistering doesn't permanently squat on a session ID in every other
// replica's view.
func (r *Registry) sweepStale(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, e := range r.owners {
		if e.replica != r.replicaID && now.Sub(e.seen) > maxAge {
			delete(r.owners, id)
		}
	}
}

// SweepLoop periodically stale-evicts peer-owned entries, per the restart
// hand-off pattern the teacher's wing_map layer implements.
func (r *Registry) SweepLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepStale(maxAge)
		}
	}
}
