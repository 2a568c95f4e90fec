package config

import (
	flag "github.com/spf13/pflag"
)

// Flags is the command-line layer. Only flags given explicitly override
// values from the file and environment.
type Flags struct {
	fs      *flag.FlagSet
	scratch Config
	conf    string
	apply   map[string]func(dst *Config)
}

// NewFlags registers every command-line option.
func NewFlags() *Flags {
	f := &Flags{
		fs:      flag.NewFlagSet("wetty", flag.ContinueOnError),
		scratch: *Default(),
		apply:   make(map[string]func(*Config)),
	}
	fs := f.fs

	fs.StringVarP(&f.conf, "conf", "c", "", "Config file (json, yaml or toml)")

	// ── ssh ──────────────────────────────────────────────────────
	bind(f, "ssh-host", "Server to ssh to", func(c *Config) *string { return &c.SSH.Host })
	bind(f, "ssh-port", "Port to ssh to", func(c *Config) *int { return &c.SSH.Port })
	bind(f, "ssh-user", "ssh user", func(c *Config) *string { return &c.SSH.User })
	bind(f, "ssh-auth", "Preferred authentication methods", func(c *Config) *string { return &c.SSH.Auth })
	bind(f, "ssh-pass", "ssh password", func(c *Config) *string { return &c.SSH.Pass })
	bind(f, "ssh-key", "Path to an ssh private key", func(c *Config) *string { return &c.SSH.Key })
	bind(f, "ssh-config", "Path to an ssh client config file", func(c *Config) *string { return &c.SSH.Config })
	bind(f, "known-hosts", "Path to a known_hosts file", func(c *Config) *string { return &c.SSH.KnownHosts })
	bind(f, "allow-remote-hosts", "Let clients choose the ssh host", func(c *Config) *bool { return &c.SSH.AllowRemoteHosts })
	bind(f, "allow-remote-command", "Let clients choose the remote command", func(c *Config) *bool { return &c.SSH.AllowRemoteCommand })
	bind(f, "force-ssh", "Always use ssh, even for localhost", func(c *Config) *bool { return &c.ForceSSH })
	bind(f, "command", "Command to run for local sessions", func(c *Config) *string { return &c.Command })

	// ── server ───────────────────────────────────────────────────
	bind(f, "base", "Base path of the application", func(c *Config) *string { return &c.Server.Base })
	bind(f, "host", "Address to listen on", func(c *Config) *string { return &c.Server.Host })
	bind(f, "port", "Port to listen on", func(c *Config) *int { return &c.Server.Port })
	bind(f, "title", "Page title", func(c *Config) *string { return &c.Server.Title })
	bind(f, "allow-iframe", "Allow the page to be embedded in an iframe", func(c *Config) *bool { return &c.Server.AllowIframe })
	bind(f, "assets", "Directory of client assets", func(c *Config) *string { return &c.Server.AssetsDir })
	bind(f, "themes", "Directory of terminal themes", func(c *Config) *string { return &c.ThemesDir })
	bind(f, "ssl-key", "TLS private key", func(c *Config) *string { return &c.SSL.Key })
	bind(f, "ssl-cert", "TLS certificate", func(c *Config) *string { return &c.SSL.Cert })

	// ── output ───────────────────────────────────────────────────
	bind(f, "log-level", "Log level (error, warn, info, debug)", func(c *Config) *string { return &c.Logging.Level })

	return f
}

// bind registers a flag whose value is copied into the target field only
// when it was set on the command line.
func bind[T string | int | bool](f *Flags, name, usage string, field func(*Config) *T) {
	p := field(&f.scratch)
	switch v := any(p).(type) {
	case *string:
		f.fs.StringVar(v, name, *v, usage)
	case *int:
		f.fs.IntVar(v, name, *v, usage)
	case *bool:
		f.fs.BoolVar(v, name, *v, usage)
	}
	f.apply[name] = func(dst *Config) { *field(dst) = *p }
}

// Parse parses args, excluding the program name.
func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

// ConfigFile returns the --conf path.
func (f *Flags) ConfigFile() string {
	return f.conf
}

// Apply copies explicitly set flags into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		if set, ok := f.apply[fl.Name]; ok {
			set(cfg)
		}
	})
}

// Usage prints flag help to the flag set's output.
func (f *Flags) Usage() {
	f.fs.PrintDefaults()
}
