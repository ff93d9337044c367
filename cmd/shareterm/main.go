package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shareterm/shareterm/internal/config"
	"github.com/shareterm/shareterm/internal/hostrunner"
	"github.com/shareterm/shareterm/internal/session"
)

func main() {
	var serverFlag, shellFlag, nameFlag string
	var enableReaders bool

	root := &cobra.Command{
		Use:   "shareterm",
		Short: "share a terminal session over the network",
		Long:  "Spawns a local shell and streams it, end-to-end encrypted, to a shareterm server for browser viewers to watch and interact with.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadHost(serverFlag, shellFlag, nameFlag, enableReaders)

			readSecret := session.NewID()
			var writeSecret string
			if cfg.EnableReaders {
				writeSecret = session.NewID()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			recordLastSession(cfg.Server, readSecret, writeSecret)

			insecure := strings.HasPrefix(cfg.Server, "http://")
			return hostrunner.Run(ctx, hostrunner.Options{
				ServerAddr:    dialAddr(cfg.Server, insecure),
				ReadSecret:    readSecret,
				WriteSecret:   writeSecret,
				ShellPath:     cfg.Shell,
				Name:          cfg.Name,
				EnableReaders: cfg.EnableReaders,
				Insecure:      insecure,
			})
		},
	}

	root.Flags().StringVar(&serverFlag, "server", "", "shareterm server origin (env SSHX_SERVER)")
	root.Flags().StringVar(&shellFlag, "shell", "", "shell to run, defaults to $SHELL")
	root.Flags().StringVar(&nameFlag, "name", "", "display name for this session")
	root.Flags().BoolVar(&enableReaders, "enable-readers", false, "issue a separate write key, allowing read-only viewer links")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// recordLastSession caches the most recently opened session's secrets under
// the user's state directory, so a future --enable-readers run (or a
// crashed-terminal recovery) can remind the user what link they last shared.
// Best-effort: a failure here should never block starting the session.
func recordLastSession(server, readSecret, writeSecret string) {
	dir, err := config.UserStateDir()
	if err != nil {
		return
	}
	line := fmt.Sprintf("server=%s\nread=%s\nwrite=%s\n", server, readSecret, writeSecret)
	_ = os.WriteFile(filepath.Join(dir, "last-session"), []byte(line), 0600)
}

// dialAddr strips the URL scheme shareterm's config accepts (https://host)
// down to the host:port form grpc.NewClient expects.
func dialAddr(origin string, insecure bool) string {
	addr := strings.TrimPrefix(origin, "https://")
	addr = strings.TrimPrefix(addr, "http://")
	if !strings.Contains(addr, ":") {
		if insecure {
			addr += ":80"
		} else {
			addr += ":443"
		}
	}
	return addr
}
