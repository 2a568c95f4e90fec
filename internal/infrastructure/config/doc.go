// Package config provides layered configuration for the terminal server.
//
// Values are resolved in order, each layer overriding the previous:
//
//	defaults < config file (--conf) < environment < command-line flags
//
// The config file format follows its extension (.json, .yaml, .yml,
// .toml). Environment variables carry the WETTY_ prefix and mirror the
// file layout, e.g. WETTY_SSH_HOST or WETTY_SERVER_ALLOW_IFRAME. Only flags
// given explicitly override earlier layers.
//
// Example Usage:
//
//	cfg, err := config.Load(os.Args[1:])
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Validate reports all problems together so a misconfigured server fails
// at startup with the full list.
package config
