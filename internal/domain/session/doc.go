// Package session connects one client transport to one terminal process.
//
// A Bridge owns both ends for the lifetime of a session and moves through
// Connecting, Active, Closing and Closed. While active it runs two pumps:
//   - process output to the transport, with backpressure from Send
//   - client events to the process: input is written in order, and
//     queued resizes collapse to the latest valid geometry
//
// The first close trigger wins: client disconnect, process exit, an I/O
// error or server shutdown. The process is killed at most once and never
// after it has exited; on exit its remaining output is flushed before the
// transport closes.
//
// Service.Serve runs one session per accepted connection. It registers the
// connection in the Registry, resolves the command (asking for a username
// with PromptUser when ssh needs one), spawns the process and runs the
// Bridge. Errors stay inside the session: they are logged, reported to the
// client and end only that connection.
//
// Example Usage:
//
//	registry := session.NewRegistry(metrics)
//	service := session.NewService(resolver, spawner, registry, logger, metrics, session.DefaultConfig())
//	err := service.Serve(ctx, transport, req)
package session
