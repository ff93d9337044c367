// Package webrtc implements the host side of the optional P2P fast path
// (§12): a pion/webrtc PeerConnection per viewer, negotiated by relaying
// SDP through the coordinator's gRPC channel instead of the direct
// browser-facing signaling socket the original PeerManager was built for.
package webrtc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DCHandler is called when a DataChannel opens for (userID, shellID).
type DCHandler func(userID, shellID uint32, dc *webrtc.DataChannel)

// PeerManager manages one PeerConnection per viewer on the host side.
type PeerManager struct {
	log *slog.Logger

	mu         sync.Mutex
	peers      map[uint32]*webrtc.PeerConnection // viewer userID → PC
	iceServers []webrtc.ICEServer
	dcHandler  DCHandler
}

// NewPeerManager creates a PeerManager with the given ICE servers. Pass nil
// for host-only ICE (same-LAN only).
func NewPeerManager(iceServers []webrtc.ICEServer, log *slog.Logger) *PeerManager {
	if log == nil {
		log = slog.Default()
	}
	return &PeerManager{
		log:        log,
		peers:      make(map[uint32]*webrtc.PeerConnection),
		iceServers: iceServers,
	}
}

// OnDC registers a callback for new DataChannels.
func (pm *PeerManager) OnDC(handler DCHandler) {
	pm.mu.Lock()
	pm.dcHandler = handler
	pm.mu.Unlock()
}

// HandleOffer processes a viewer's SDP offer (relayed by the coordinator
// over the gRPC channel), returning the answer SDP to relay back.
func (pm *PeerManager) HandleOffer(userID, shellID uint32, sdpOffer string) (string, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: pm.iceServers})
	if err != nil {
		return "", fmt.Errorf("new peer connection: %w", err)
	}

	pm.mu.Lock()
	if old, ok := pm.peers[userID]; ok {
		old.Close()
	}
	pm.peers[userID] = pc
	pm.mu.Unlock()

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			pm.log.Info("p2p data channel opened", "user", userID, "shell", shellID)
			pm.mu.Lock()
			handler := pm.dcHandler
			pm.mu.Unlock()
			if handler != nil {
				handler(userID, shellID, dc)
			}
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		pm.log.Debug("p2p connection state", "user", userID, "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			pm.mu.Lock()
			if pm.peers[userID] == pc {
				delete(pm.peers, userID)
			}
			pm.mu.Unlock()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer}); err != nil {
		pc.Close()
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		pc.Close()
		return "", fmt.Errorf("no local description after ICE gathering")
	}
	return local.SDP, nil
}

// Close shuts down every peer connection this host holds.
func (pm *PeerManager) Close() {
	pm.mu.Lock()
	peers := pm.peers
	pm.peers = make(map[uint32]*webrtc.PeerConnection)
	pm.mu.Unlock()

	for _, pc := range peers {
		pc.Close()
	}
}
