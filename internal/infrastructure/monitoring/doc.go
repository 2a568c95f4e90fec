/*
Package monitoring provides Prometheus metrics for the terminal server.

# Overview

Metrics are registered on a private registry so tests and multiple server
instances do not collide on the global default. The registry also carries
the Go runtime and process collectors.

# Features

- Active connection gauge (wetty_connections)
- Session totals and lifetimes by close reason
- Process exits, spawn failures and rejected requests
- Terminal bytes relayed in each direction
- HTTP request metrics keyed by route template

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

Metrics satisfies session.Metrics and is handed to the session registry.
*/
package monitoring
