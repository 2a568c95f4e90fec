// Package http provides the HTTP endpoints around the terminal socket.
//
// Endpoints:
//   - Page: {base}/ and {base}/ssh/:user
//   - Client assets: {base}/client/*
//   - Themes: {base}/themes
//   - Sessions: {base}/sessions, {base}/sessions/:id
//   - Health: /health
//
// Example Usage:
//
//	handlers := http.NewHandlers(registry, themes, metrics)
//	router.GET("/health", handlers.Health)
//	router.GET(base+"/themes", handlers.Themes)
package http
