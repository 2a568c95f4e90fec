package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
	"github.com/GriffinCanCode/webtty/backend/internal/infrastructure/logging"
)

var authMethods = map[string]bool{
	command.AuthPassword:  true,
	command.AuthPublicKey: true,
	command.AuthKeyboard:  true,
	command.AuthNone:      true,
	"hostbased":           true,
	"gssapi-with-mic":     true,
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validPort(c.Server.Port) {
		add("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		add("server.maxConnections must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdownTimeout must be positive")
	}
	if !validPort(c.SSH.Port) {
		add("ssh.port %d out of range", c.SSH.Port)
	}
	for _, m := range strings.Split(c.SSH.Auth, ",") {
		if !authMethods[strings.TrimSpace(m)] {
			add("ssh.auth: unknown method %q", m)
		}
	}
	if c.SSH.User != "" && !command.ValidUser(c.SSH.User) {
		add("ssh.user %q is not a valid user name", c.SSH.User)
	}
	if c.SSH.Key != "" {
		if err := checkPrivateKey(c.SSH.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if c.SSH.Config != "" {
		if err := readable(c.SSH.Config); err != nil {
			add("ssh.config: %w", err)
		}
	}

	if c.Session.PromptTimeout <= 0 {
		add("session.promptTimeout must be positive")
	}
	if c.Session.ReadBufferSize <= 0 {
		add("session.readBufferSize must be positive")
	}
	if c.Session.InputQueue <= 0 {
		add("session.inputQueue must be positive")
	}
	if c.Session.SendQueue <= 0 {
		add("session.sendQueue must be positive")
	}
	if c.Session.MaxMessageSize <= 0 {
		add("session.maxMessageSize must be positive")
	}
	if c.Session.WriteTimeout <= 0 {
		add("session.writeTimeout must be positive")
	}
	if c.Session.PingInterval <= 0 {
		add("session.pingInterval must be positive")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %w", err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		add("rateLimit: requestsPerSecond and burst must be positive when enabled")
	}
	if c.RateLimit.GlobalRequestsPerSecond < 0 {
		add("rateLimit.globalRequestsPerSecond must not be negative")
	} else if c.RateLimit.GlobalRequestsPerSecond > 0 && c.RateLimit.GlobalBurst <= 0 {
		add("rateLimit.globalBurst must be positive when a global limit is set")
	}

	if (c.SSL.Key == "") != (c.SSL.Cert == "") {
		add("ssl: both key and cert are required")
	} else if c.SSL.Enabled() {
		if err := readable(c.SSL.Key); err != nil {
			add("ssl.key: %w", err)
		}
		if err := readable(c.SSL.Cert); err != nil {
			add("ssl.cert: %w", err)
		}
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// checkPrivateKey fails when the key file cannot be read or is not a
// private key. Passphrase-protected keys are accepted.
func checkPrivateKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ssh.key: %w", err)
	}
	if _, err := ssh.ParsePrivateKey(data); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return fmt.Errorf("ssh.key: %s is not a usable private key: %w", path, err)
	}
	return nil
}
