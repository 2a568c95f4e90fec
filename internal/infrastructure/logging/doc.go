// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Sessions log through a child logger created with ForConnection so every
// line carries the connection id and client address. Authentication
// material (ssh passwords, key contents) must never be passed as a field.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3000"))
//	sess := logger.ForConnection("conn_01H...", "10.0.0.4:51234")
//	sess.Debug("pty read failed", zap.Error(err))
package logging
