// ABOUTME: REMORA_* environment variable overrides for the daemon's bind address and auth.
// ABOUTME: Refuses to bind to a non-loopback address unless remote access is explicitly allowed and authenticated.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrRemoteWithoutToken indicates REMORA_ALLOW_REMOTE is set but no
	// auth token was provided.
	ErrRemoteWithoutToken = errors.New(
		"REMORA_ALLOW_REMOTE is true but REMORA_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	// ErrNonLoopbackBind indicates REMORA_BIND names a non-loopback
	// address without opting into remote access.
	ErrNonLoopbackBind = errors.New(
		"REMORA_BIND is a non-loopback address but REMORA_ALLOW_REMOTE is not true; set REMORA_ALLOW_REMOTE=true and REMORA_AUTH_TOKEN to allow remote access",
	)
)

// ServerEnv holds the server-layer settings sourced from REMORA_* env
// vars, kept separate from the YAML Config since these are host/
// deployment concerns rather than swarm-behavior concerns.
type ServerEnv struct {
	Bind        string
	AllowRemote bool
	AuthToken   string
}

// LoadServerEnv reads REMORA_* environment variables and validates the
// bind address against the remote-access policy.
func LoadServerEnv() (ServerEnv, error) {
	bind := envOrDefault("REMORA_BIND", "127.0.0.1:7790")

	allowRemote := false
	if v := os.Getenv("REMORA_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	authToken := os.Getenv("REMORA_AUTH_TOKEN")

	if allowRemote && authToken == "" {
		return ServerEnv{}, ErrRemoteWithoutToken
	}

	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
			case ip != nil:
				return ServerEnv{}, fmt.Errorf("%w: REMORA_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
			default:
				return ServerEnv{}, fmt.Errorf("%w: REMORA_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return ServerEnv{Bind: bind, AllowRemote: allowRemote, AuthToken: authToken}, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
