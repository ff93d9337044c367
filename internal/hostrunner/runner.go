// Package hostrunner is the host CLI's side of the protocol: it dials the
// server's gRPC channel, spawns local PTY-backed shells with creack/pty,
// and pumps ciphertext in both directions, following the
// dial/raw-mode/SIGWINCH/pump shape of muti-metroo's shell client (here
// driven over a gRPC stream instead of a WebSocket).
package hostrunner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	pionwebrtc "github.com/pion/webrtc/v4"

	"github.com/shareterm/shareterm/internal/crypto"
	"github.com/shareterm/shareterm/internal/hostrpc"
	"github.com/shareterm/shareterm/internal/session"
	"github.com/shareterm/shareterm/internal/webrtc"
)

// Options configures one host run. ReadSecret is the passphrase every
// viewer needs to decrypt shell output; WriteSecret, if set, gates keystroke
// capability separately, per §3's independent read/write key model.
type Options struct {
	ServerAddr    string
	ReadSecret    string
	WriteSecret   string
	ShellPath     string
	Name          string
	EnableReaders bool
	Insecure      bool
	Log           *slog.Logger
}

// Runner owns the gRPC channel and the set of locally spawned shells for
// one host invocation.
type Runner struct {
	opts  Options
	key   crypto.Key
	log   *slog.Logger
	peers *webrtc.PeerManager

	mu      sync.Mutex
	shells  map[uint32]*localShell
	writers map[uint32]*webrtc.SwappableWriter
	nextID  uint32
}

// Run opens a session on the server, spawns the initial shell, and pumps
// data until ctx is cancelled or the connection is irrecoverably lost. It
// prints the share URL to stdout once, on first connect.
func Run(ctx context.Context, opts Options) error {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	r := &Runner{
		opts:    opts,
		key:     crypto.DeriveKey(opts.ReadSecret),
		log:     opts.Log,
		peers:   webrtc.NewPeerManager(nil, opts.Log),
		shells:  make(map[uint32]*localShell),
		writers: make(map[uint32]*webrtc.SwappableWriter),
	}
	return r.runLoop(ctx)
}

// writerFor returns the SwappableWriter for a shell, creating one if needed
// and always refreshing its relay fallback to send on the given stream —
// each reconnect opens a new stream, and a writer cached from a dead one
// would silently black-hole relay traffic after a migration falls back.
func (r *Runner) writerFor(shellID uint32, stream hostrpc.ChannelClientStream) *webrtc.SwappableWriter {
	relayWrite := func(data []byte) error {
		return stream.Send(&hostrpc.ClientUpdate{Data: &hostrpc.DataFrame{ShellID: shellID, Ciphertext: data}})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[shellID]
	if !ok {
		w = webrtc.NewSwappableWriter(relayWrite, r.log)
		r.writers[shellID] = w
	} else {
		w.SetRelayWrite(relayWrite)
	}
	return w
}

func (r *Runner) dial(ctx context.Context) (*grpc.ClientConn, error) {
	creds := credentials.NewTLS(nil)
	if r.opts.Insecure {
		creds = insecure.NewCredentials()
	}
	return grpc.NewClient(r.opts.ServerAddr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(hostrpc.CodecName)),
	)
}

// runLoop dials, opens a session, and attaches a channel, reconnecting with
// backoff on failure. The session name and capability token persist across
// reconnects so a transient network blip doesn't spawn a second session.
func (r *Runner) runLoop(ctx context.Context) error {
	b := newBackoff(500*time.Millisecond, 30*time.Second)

	cc, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.opts.ServerAddr, err)
	}
	defer cc.Close()
	client := hostrpc.NewClient(cc)

	req := &hostrpc.OpenRequest{
		Origin:         r.opts.ServerAddr,
		EncryptedZeros: crypto.Verifier(r.key),
		Name:           r.opts.Name,
		EnableReaders:  r.opts.EnableReaders,
	}
	if r.opts.WriteSecret != "" {
		req.WritePasswordHash = crypto.Verifier(crypto.DeriveKey(r.opts.WriteSecret))
	}
	openResp, err := client.Open(ctx, req)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	fragment := r.opts.ReadSecret
	if r.opts.WriteSecret != "" {
		fragment += "," + r.opts.WriteSecret
	}
	fmt.Printf("link: %s#%s\n", openResp.URL, fragment)

	first, err := r.spawnAndRegister(r.opts.ShellPath)
	if err != nil {
		return fmt.Errorf("spawn shell: %w", err)
	}

	for {
		err := r.attach(ctx, client, openResp.Name, openResp.Token, first)
		if ctx.Err() != nil {
			return nil
		}
		// NotFound and BadAuth (Unauthenticated) are terminal: the session
		// or its token is gone, so reconnecting cannot succeed.
		if code := status.Code(err); code == codes.NotFound || code == codes.Unauthenticated {
			return fmt.Errorf("session ended: %w", err)
		}
		r.log.Warn("channel lost, reconnecting", "err", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.next()):
		}
	}
}

func (r *Runner) spawnAndRegister(shellPath string) (*localShell, error) {
	rows, cols := session.MinRows, session.MinCols
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if c, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
			cols, rows = c, h
		}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	sh, err := spawnShell(id, shellPath, rows, cols)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.shells[id] = sh
	r.mu.Unlock()
	return sh, nil
}

// attach runs one Channel stream lifetime: Hello handshake, then pumping
// shell output to the server and server frames back to the local shells,
// until the stream errors out or ctx is cancelled.
func (r *Runner) attach(ctx context.Context, client *hostrpc.Client, name, token string, first *localShell) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := client.Channel(streamCtx)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := stream.Send(&hostrpc.ClientUpdate{Hello: &hostrpc.HelloFrame{SessionName: name, Token: token}}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	sh := first
	if err := stream.Send(&hostrpc.ClientUpdate{CreatedShell: &hostrpc.CreatedShellFrame{ID: sh.id, Rows: sh.rows, Cols: sh.cols}}); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	var raw *term.State
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, _ = term.MakeRaw(int(os.Stdin.Fd()))
		defer func() {
			if raw != nil {
				term.Restore(int(os.Stdin.Fd()), raw)
			}
		}()
	}

	errCh := make(chan error, 3)
	r.peers.OnDC(func(userID, shellID uint32, dc *pionwebrtc.DataChannel) {
		w := r.writerFor(shellID, stream)
		if err := w.MigrateToDC(userID, shellID, dc); err != nil {
			r.log.Warn("migrate to data channel failed", "err", err)
			return
		}
		stream.Send(&hostrpc.ClientUpdate{Migrated: &hostrpc.MigratedFrame{UserID: userID, ShellID: shellID}})
	})
	go r.pumpShellOutput(streamCtx, stream, sh, errCh)
	go r.pumpServerFrames(streamCtx, stream, errCh)
	go r.pumpResizes(streamCtx, stream, sh, sigCh, errCh)

	select {
	case <-ctx.Done():
		stream.CloseSend()
		return nil
	case err := <-errCh:
		return err
	}
}

func (r *Runner) pumpShellOutput(ctx context.Context, stream hostrpc.ChannelClientStream, sh *localShell, errCh chan<- error) {
	w := r.writerFor(sh.id, stream)
	buf := make([]byte, 32*1024)
	var offset int64
	for {
		n, err := sh.Read(buf)
		if n > 0 {
			ct, encErr := crypto.Segment(r.key, crypto.ShellDataStream(sh.id), uint64(offset), buf[:n])
			if encErr == nil {
				w.Write(ct)
			}
			offset += int64(n)
		}
		if err != nil {
			errCh <- fmt.Errorf("shell closed: %w", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Runner) pumpServerFrames(ctx context.Context, stream hostrpc.ChannelClientStream, errCh chan<- error) {
	for {
		update, err := stream.Recv()
		if err != nil {
			errCh <- err
			return
		}
		r.handleServerUpdate(ctx, stream, update, errCh)
	}
}

func (r *Runner) handleServerUpdate(ctx context.Context, stream hostrpc.ChannelClientStream, update *hostrpc.ServerUpdate, errCh chan<- error) {
	switch {
	case update.Input != nil:
		sh := r.shell(update.Input.ShellID)
		if sh == nil {
			return
		}
		plain, err := crypto.Segment(r.key, crypto.ViewerInputStream, uint64(update.Input.Offset), update.Input.Ciphertext)
		if err == nil {
			sh.Write(plain)
		}

	case update.Resize != nil:
		if sh := r.shell(update.Resize.ID); sh != nil {
			sh.Resize(update.Resize.Rows, update.Resize.Cols)
		}

	case update.Create != nil:
		sh, err := spawnShell(update.Create.ID, r.opts.ShellPath, update.Create.Rows, update.Create.Cols)
		if err != nil {
			stream.Send(&hostrpc.ClientUpdate{Error: &hostrpc.ErrorFrame{Message: err.Error()}})
			return
		}
		r.mu.Lock()
		r.shells[sh.id] = sh
		r.mu.Unlock()
		stream.Send(&hostrpc.ClientUpdate{CreatedShell: &hostrpc.CreatedShellFrame{ID: sh.id, Rows: sh.rows, Cols: sh.cols}})
		go r.pumpShellOutput(ctx, stream, sh, errCh)

	case update.Close != nil:
		r.mu.Lock()
		sh, ok := r.shells[update.Close.ID]
		delete(r.shells, update.Close.ID)
		r.mu.Unlock()
		if ok {
			sh.Close()
		}
		stream.Send(&hostrpc.ClientUpdate{ClosedShell: &hostrpc.ClosedShellFrame{ID: update.Close.ID}})

	case update.Sync != nil:
		// Reconciliation: the server tells us the byte offset it has
		// retained per shell. Retransmission of gaps is not implemented —
		// our outbound stream is ordered and the server's ring buffer
		// already holds everything it has acknowledged.

	case update.Ping != nil:
		stream.Send(&hostrpc.ClientUpdate{Pong: &hostrpc.PongFrame{Timestamp: update.Ping.Timestamp}})

	case update.Offer != nil:
		sdp, err := r.peers.HandleOffer(update.Offer.UserID, update.Offer.ShellID, update.Offer.SDP)
		if err != nil {
			r.log.Warn("handle webrtc offer failed", "err", err)
			return
		}
		stream.Send(&hostrpc.ClientUpdate{Answer: &hostrpc.AnswerFrame{
			UserID: update.Offer.UserID, ShellID: update.Offer.ShellID, SDP: sdp,
		}})

	case update.Fallback != nil:
		r.writerFor(update.Fallback.ShellID, stream).FallbackToRelay(update.Fallback.UserID, update.Fallback.ShellID)
	}
}

func (r *Runner) pumpResizes(ctx context.Context, stream hostrpc.ChannelClientStream, sh *localShell, sigCh <-chan os.Signal, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				continue
			}
			cols, rows, err := term.GetSize(int(os.Stdin.Fd()))
			if err != nil {
				continue
			}
			sh.Resize(rows, cols)
		}
	}
}

func (r *Runner) shell(id uint32) *localShell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shells[id]
}
