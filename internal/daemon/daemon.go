// Package daemon wires the server's components together and runs them
// until a termination signal or fatal error, following the
// signal-channel-plus-errCh shape wingthing's own daemon used to run its
// timeline engine and transport server.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shareterm/shareterm/internal/coordinator"
	"github.com/shareterm/shareterm/internal/logger"
	"github.com/shareterm/shareterm/internal/mesh"
	"github.com/shareterm/shareterm/internal/transport"
)

// Config holds the server daemon's startup parameters.
type Config struct {
	Listen         string
	Port           int
	Secret         string
	OverrideOrigin string

	// ReplicaID identifies this process within the mesh; Peers lists the
	// other replicas to gossip ownership with, keyed by their replica ID.
	// Both are empty for a single-replica deployment.
	ReplicaID string
	Peers     map[string]mesh.Peer
	Addr      mesh.ReplicaAddr

	LogLevel string
}

// Run starts the coordinator, mesh registry, and transport listener, and
// blocks until a SIGINT/SIGTERM arrives or the transport listener fails.
func Run(cfg Config) error {
	if err := logger.Init(cfg.LogLevel, "", cfg.ReplicaID); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Log

	reg := mesh.New(cfg.ReplicaID, log)
	for id, p := range cfg.Peers {
		reg.AddPeer(id, p)
	}

	co := coordinator.New(cfg.Secret, reg, cfg.OverrideOrigin, log)
	srv := transport.NewServer(cfg.Listen, cfg.Port, co, reg, cfg.Addr, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Peers) > 0 {
		go reg.GossipLoop(ctx, time.Second)
	}
	go reg.SweepLoop(ctx, 30*time.Second, 2*time.Minute)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	log.Info("shareterm-server started", "listen", cfg.Listen, "port", cfg.Port)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		<-errCh
	case err := <-errCh:
		cancel()
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
	}

	return nil
}
