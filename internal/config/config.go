// Package config holds the flag/env-derived configuration for the server
// and host binaries.
package config

import "os"

// Server holds the relay/coordinator's startup configuration.
type Server struct {
	Listen         string // bind address, e.g. "0.0.0.0"
	Port           int
	OverrideOrigin string // URL prefix used when building session share links
	Secret         string // seeds JWT signing and any HMAC-based tokens
}

// Host holds the CLI's startup configuration for one `shareterm` invocation.
type Host struct {
	Server        string // gRPC origin, e.g. "https://shareterm.example.com"
	Shell         string // shell binary to spawn, defaults to $SHELL
	Name          string // display label offered to the server
	EnableReaders bool   // allow read-only viewers in addition to read-write
}

const defaultServerEnv = "SSHX_SERVER"
const defaultServerURL = "https://shareterm.dev"
const defaultPortEnv = "PORT"

// LoadServer builds a Server config from CLI flag values, honoring the PORT
// environment variable override the way Fly.io-style deployments expect:
// when PORT holds a number it replaces port, whether or not --port was
// given explicitly.
func LoadServer(listen string, port int, secret, overrideOrigin string) Server {
	if env := os.Getenv(defaultPortEnv); env != "" {
		if p, err := parsePort(env); err == nil {
			port = p
		}
	}
	return Server{Listen: listen, Port: port, OverrideOrigin: overrideOrigin, Secret: secret}
}

func parsePort(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// LoadHost builds a Host config from CLI flag values, applying the
// SSHX_SERVER environment override when the flag was left at its default.
func LoadHost(server, shell, name string, enableReaders bool) Host {
	if server == "" {
		if env := os.Getenv(defaultServerEnv); env != "" {
			server = env
		} else {
			server = defaultServerURL
		}
	}
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return Host{Server: server, Shell: shell, Name: name, EnableReaders: enableReaders}
}
