// Package server assembles the terminal gateway: it builds the session
// service, registers routes on a gin router and runs the HTTP server.
//
// Routes ({base} defaults to /wetty):
//
//	GET /health                     health and metrics snapshot
//	GET /metrics                    prometheus exposition
//	GET {base}/                     terminal page
//	GET {base}/ssh/:user            terminal page for an ssh user
//	GET {base}/client/*filepath     client assets
//	GET {base}/themes               terminal themes
//	GET {base}/sessions[/:id]       live sessions
//	GET {base}/socket               terminal socket
//	GET {base}/ssh/:user/socket     terminal socket for an ssh user
//
// Shutdown stops the listener first, then closes every live session and
// waits for their processes to be released.
package server
