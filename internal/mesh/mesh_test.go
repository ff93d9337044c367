package mesh

import (
	"context"
	"testing"
	"time"
)

func TestRegisterDeregisterIsLocal(t *testing.T) {
	r := New("replica-a", nil)

	r.Register("sess-1")
	if !r.IsLocal("sess-1") {
		t.Fatal("expected sess-1 to be local after Register")
	}
	replica, ok := r.Owner("sess-1")
	if !ok || replica != "replica-a" {
		t.Fatalf("Owner() = (%q, %v), want (replica-a, true)", replica, ok)
	}

	r.Deregister("sess-1")
	if _, ok := r.Owner("sess-1"); ok {
		t.Fatal("expected sess-1 to be gone after Deregister")
	}
}

func TestOwnerUnknownSession(t *testing.T) {
	r := New("replica-a", nil)
	if _, ok := r.Owner("never-seen"); ok {
		t.Fatal("expected ok=false for a session this registry never heard of")
	}
}

func TestIngestMergesPeerOwnership(t *testing.T) {
	r := New("replica-a", nil)
	r.Ingest("replica-b", []string{"sess-2", "sess-3"})

	replica, ok := r.Owner("sess-2")
	if !ok || replica != "replica-b" {
		t.Fatalf("Owner(sess-2) = (%q, %v), want (replica-b, true)", replica, ok)
	}
	if r.IsLocal("sess-2") {
		t.Fatal("a peer-owned session must not report as local")
	}
}

func TestIngestLeavesUnrelatedLocalOwnership(t *testing.T) {
	r := New("replica-a", nil)
	r.Register("sess-4")

	// A gossip round from replica-b that names only other session IDs must
	// leave replica-a's own registration of sess-4 untouched.
	r.Ingest("replica-b", []string{"sess-5"})
	if !r.IsLocal("sess-4") {
		t.Fatal("unrelated gossip must not affect an existing local registration")
	}
}

type fakePeer struct {
	pushed chan []string
}

func (p *fakePeer) Push(ctx context.Context, replicaID string, owned []string) error {
	select {
	case p.pushed <- owned:
	default:
	}
	return nil
}

func TestGossipLoopPushesLocalOwnership(t *testing.T) {
	r := New("replica-a", nil)
	r.Register("sess-6")

	peer := &fakePeer{pushed: make(chan []string, 1)}
	r.AddPeer("replica-b", peer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.GossipLoop(ctx, 5*time.Millisecond)

	select {
	case owned := <-peer.pushed:
		if len(owned) != 1 || owned[0] != "sess-6" {
			t.Fatalf("pushed ownership = %v, want [sess-6]", owned)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for gossip push")
	}
}

func TestSweepStaleEvictsOldPeerEntries(t *testing.T) {
	r := New("replica-a", nil)
	r.Ingest("replica-b", []string{"sess-7"})

	r.mu.Lock()
	e := r.owners["sess-7"]
	e.seen = time.Now().Add(-time.Hour)
	r.owners["sess-7"] = e
	r.mu.Unlock()

	r.sweepStale(time.Minute)
	if _, ok := r.Owner("sess-7"); ok {
		t.Fatal("expected a stale peer-owned entry to be swept")
	}
}

func TestSweepStaleKeepsLocalEntries(t *testing.T) {
	r := New("replica-a", nil)
	r.Register("sess-8")

	r.mu.Lock()
	e := r.owners["sess-8"]
	e.seen = time.Now().Add(-time.Hour)
	r.owners["sess-8"] = e
	r.mu.Unlock()

	r.sweepStale(time.Minute)
	if !r.IsLocal("sess-8") {
		t.Fatal("sweepStale must never evict this replica's own registrations")
	}
}
