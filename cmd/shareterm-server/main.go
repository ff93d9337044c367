package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shareterm/shareterm/internal/config"
	"github.com/shareterm/shareterm/internal/daemon"
	"github.com/shareterm/shareterm/internal/mesh"
)

func main() {
	root := &cobra.Command{
		Use:   "shareterm-server",
		Short: "shareterm relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			listen, _ := cmd.Flags().GetString("listen")
			port, _ := cmd.Flags().GetInt("port")
			secret, _ := cmd.Flags().GetString("secret")
			overrideOrigin, _ := cmd.Flags().GetString("override-origin")
			replicaID, _ := cmd.Flags().GetString("replica-id")
			logLevel, _ := cmd.Flags().GetString("log-level")

			if secret == "" {
				secret = os.Getenv("SHARETERM_SECRET")
			}

			srv := config.LoadServer(listen, port, secret, overrideOrigin)

			return daemon.Run(daemon.Config{
				Listen:         srv.Listen,
				Port:           srv.Port,
				Secret:         srv.Secret,
				OverrideOrigin: srv.OverrideOrigin,
				ReplicaID:      replicaID,
				Peers:          map[string]mesh.Peer{},
				LogLevel:       logLevel,
			})
		},
	}

	root.Flags().String("listen", "0.0.0.0", "listen address")
	root.Flags().Int("port", 8051, "listen port")
	root.Flags().String("secret", "", "shared secret for token signing (env SHARETERM_SECRET)")
	root.Flags().String("override-origin", "", "override the origin reported in share URLs")
	root.Flags().String("replica-id", "local", "identifies this replica within the mesh")
	root.Flags().String("log-level", "info", "debug, info, warn, or error")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
