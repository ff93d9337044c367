package mesh

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// ReplicaAddr resolves a replica ID to a dialable WebSocket origin. The
// transport façade supplies this, typically from a static peer list or
// service discovery; the mesh package itself has no opinion on addressing.
type ReplicaAddr func(replicaID string) (wsURL string, ok bool)

// BridgeViewer proxies an already-accepted viewer WebSocket 1:1 to the
// session's owning replica, per §4.6 ("a replica accepting a viewer for a
// session it does not own proxies the WebSocket to the owning replica").
// The proxy is byte-transparent: it never decodes the CBOR frames it
// shuttles, since it has no key material to do anything useful with them.
func BridgeViewer(ctx context.Context, local *websocket.Conn, ownerURL string) error {
	upstream, _, err := websocket.Dial(ctx, ownerURL, nil)
	if err != nil {
		return fmt.Errorf("mesh: dial owner: %w", err)
	}
	defer upstream.CloseNow()

	errCh := make(chan error, 2)
	go pipeFrames(ctx, local, upstream, errCh)
	go pipeFrames(ctx, upstream, local, errCh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func pipeFrames(ctx context.Context, from, to *websocket.Conn, errCh chan<- error) {
	for {
		typ, data, err := from.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if err := to.Write(ctx, typ, data); err != nil {
			errCh <- err
			return
		}
	}
}
