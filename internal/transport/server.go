// Package transport is the façade described in §4.7: the HTTP/WebSocket
// and gRPC listeners, graceful shutdown, and static viewer-bundle serving,
// wrapped around a coordinator.Coordinator and a mesh.Registry.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"

	"github.com/shareterm/shareterm/internal/coordinator"
	"github.com/shareterm/shareterm/internal/hostrpc"
	"github.com/shareterm/shareterm/internal/mesh"
	"github.com/shareterm/shareterm/internal/metrics"
	"github.com/shareterm/shareterm/internal/ratelimit"
	"github.com/shareterm/shareterm/internal/viewer"
)

// viewerAttachRate and viewerAttachBurst bound how often one IP can attempt
// a viewer WebSocket upgrade, independent of whatever auth verifier it
// supplies — this is the layer that makes brute-forcing a read secret
// expensive even before crypto.VerifyConstantTime runs.
const (
	viewerAttachRate  = 5.0
	viewerAttachBurst = 20
)

// Server binds the viewer HTTP/WebSocket API and the host gRPC service on
// one listener, dispatching each request by content-type the way grpc-go's
// own docs recommend for sharing a port with a plain HTTP mux.
type Server struct {
	Listen string
	Port   int

	Coordinator *coordinator.Coordinator
	Mesh        *mesh.Registry
	ReplicaAddr mesh.ReplicaAddr

	// StaticDir, if set, serves the pre-built viewer bundle. Left empty in
	// this repo: the viewer bundle is out of scope, per spec §2.
	StaticDir string

	log *slog.Logger

	grpcSrv *grpc.Server
	httpSrv *http.Server
	limiter *ratelimit.Limiter
}

// NewServer wires a Server around an already-constructed coordinator and
// mesh registry.
func NewServer(listen string, port int, co *coordinator.Coordinator, m *mesh.Registry, addr mesh.ReplicaAddr, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Listen: listen, Port: port, Coordinator: co, Mesh: m, ReplicaAddr: addr, log: log,
		limiter: ratelimit.New(viewerAttachRate, viewerAttachBurst),
	}
}

// ListenAndServe runs the combined listener until ctx is cancelled, then
// drains it gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.Listen, strconv.Itoa(s.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/s/", s.handleViewer)
	metrics.Register(mux)
	if s.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.StaticDir)))
	}

	s.grpcSrv = grpc.NewServer()
	hostrpc.RegisterServer(s.grpcSrv, s.Coordinator)

	combined := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor == 2 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/grpc") {
			s.grpcSrv.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	s.httpSrv = &http.Server{Handler: h2c.NewHandler(combined, &http2.Server{})}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	s.log.Info("transport listening", "addr", addr)

	select {
	case <-ctx.Done():
		s.shutdown()
		return nil
	case err := <-errCh:
		s.shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown() {
	s.log.Info("shutting down, draining connections")
	s.Coordinator.TerminateAll("server shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(shutCtx)
	s.grpcSrv.GracefulStop()
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/s/")
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}

	if !s.limiter.Allow(ratelimit.ClientIP(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	ctx := r.Context()

	if s.Mesh != nil && !s.Mesh.IsLocal(sessionID) {
		owner, ok := s.Mesh.Owner(sessionID)
		if !ok || s.ReplicaAddr == nil {
			conn.Close(websocket.StatusCode(viewer.CloseSessionOrAuth), "session not found")
			return
		}
		ownerURL, ok := s.ReplicaAddr(owner)
		if !ok {
			conn.Close(websocket.StatusCode(viewer.CloseSessionOrAuth), "session not found")
			return
		}
		if err := mesh.BridgeViewer(ctx, conn, ownerURL); err != nil {
			s.log.Debug("bridge ended", "session", sessionID, "err", err)
		}
		return
	}

	vc := viewer.NewConn(conn)
	if err := s.Coordinator.AttachViewer(ctx, sessionID, vc); err != nil {
		s.log.Debug("viewer attach ended", "session", sessionID, "err", err)
	}
}
