// Package main is the entry point for the terminal gateway.
//
// The server exposes a login shell, or an ssh client, to browsers over a
// websocket. Each connection gets its own pseudo-terminal.
//
// Configuration (lowest to highest precedence):
//   - Defaults
//   - Config file given by --conf (json, yaml or toml)
//   - Environment variables prefixed WETTY_, e.g. WETTY_SSH_HOST
//   - CLI flags
//
// Usage:
//
//	# Local login on port 3000
//	./server
//
//	# ssh to a remote host, letting clients pick the user
//	./server --ssh-host example.com --force-ssh
//
//	# Config file plus TLS
//	./server --conf wetty.yaml --ssl-key key.pem --ssl-cert cert.pem
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
