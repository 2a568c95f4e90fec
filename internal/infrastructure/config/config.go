package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
)

// EnvPrefix prefixes every environment variable, e.g. WETTY_SSH_HOST.
const EnvPrefix = "WETTY"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
	SSH       SSHConfig       `json:"ssh" yaml:"ssh" toml:"ssh"`
	Session   SessionConfig   `json:"session" yaml:"session" toml:"session"`
	Logging   LogConfig       `json:"logging" yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit" toml:"rateLimit" split_words:"true"`
	SSL       SSLConfig       `json:"ssl" yaml:"ssl" toml:"ssl"`

	// Command is run for local sessions; "login" means an interactive login.
	Command   string `json:"command" yaml:"command" toml:"command"`
	ForceSSH  bool   `json:"forceSSH" yaml:"forceSSH" toml:"forceSSH" split_words:"true"`
	ThemesDir string `json:"themesDir" yaml:"themesDir" toml:"themesDir" split_words:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string `json:"host" yaml:"host" toml:"host"`
	Port        int    `json:"port" yaml:"port" toml:"port"`
	Base        string `json:"base" yaml:"base" toml:"base"`
	Title       string `json:"title" yaml:"title" toml:"title"`
	AllowIframe bool   `json:"allowIframe" yaml:"allowIframe" toml:"allowIframe" split_words:"true"`
	AssetsDir   string `json:"assetsDir" yaml:"assetsDir" toml:"assetsDir" split_words:"true"`

	AllowedOrigins  []string `json:"allowedOrigins" yaml:"allowedOrigins" toml:"allowedOrigins" split_words:"true"`
	MaxConnections  int      `json:"maxConnections" yaml:"maxConnections" toml:"maxConnections" split_words:"true"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout" split_words:"true"`
}

// SSHConfig is the static ssh policy.
type SSHConfig struct {
	Host       string `json:"host" yaml:"host" toml:"host"`
	Port       int    `json:"port" yaml:"port" toml:"port"`
	User       string `json:"user" yaml:"user" toml:"user"`
	Auth       string `json:"auth" yaml:"auth" toml:"auth"`
	Pass       string `json:"pass" yaml:"pass" toml:"pass"`
	Key        string `json:"key" yaml:"key" toml:"key"`
	Config     string `json:"config" yaml:"config" toml:"config"`
	KnownHosts string `json:"knownHosts" yaml:"knownHosts" toml:"knownHosts" split_words:"true"`

	AllowRemoteHosts   bool `json:"allowRemoteHosts" yaml:"allowRemoteHosts" toml:"allowRemoteHosts" split_words:"true"`
	AllowRemoteCommand bool `json:"allowRemoteCommand" yaml:"allowRemoteCommand" toml:"allowRemoteCommand" split_words:"true"`
}

// SessionConfig holds per-connection limits.
type SessionConfig struct {
	PromptTimeout  Duration `json:"promptTimeout" yaml:"promptTimeout" toml:"promptTimeout" split_words:"true"`
	ReadBufferSize int      `json:"readBufferSize" yaml:"readBufferSize" toml:"readBufferSize" split_words:"true"`
	InputQueue     int      `json:"inputQueue" yaml:"inputQueue" toml:"inputQueue" split_words:"true"`
	SendQueue      int      `json:"sendQueue" yaml:"sendQueue" toml:"sendQueue" split_words:"true"`
	MaxMessageSize int64    `json:"maxMessageSize" yaml:"maxMessageSize" toml:"maxMessageSize" split_words:"true"`
	WriteTimeout   Duration `json:"writeTimeout" yaml:"writeTimeout" toml:"writeTimeout" split_words:"true"`
	PingInterval   Duration `json:"pingInterval" yaml:"pingInterval" toml:"pingInterval" split_words:"true"`
	KillGrace      Duration `json:"killGrace" yaml:"killGrace" toml:"killGrace" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `json:"level" yaml:"level" toml:"level"`
	Development bool   `json:"development" yaml:"development" toml:"development"`
}

// RateLimitConfig holds per-IP socket rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond" toml:"requestsPerSecond" split_words:"true"`
	Burst             int     `json:"burst" yaml:"burst" toml:"burst"`
	Enabled           bool    `json:"enabled" yaml:"enabled" toml:"enabled"`

	// GlobalRequestsPerSecond caps socket upgrades across all clients;
	// zero disables the cap.
	GlobalRequestsPerSecond float64 `json:"globalRequestsPerSecond" yaml:"globalRequestsPerSecond" toml:"globalRequestsPerSecond" split_words:"true"`
	GlobalBurst             int     `json:"globalBurst" yaml:"globalBurst" toml:"globalBurst" split_words:"true"`
}

// SSLConfig enables TLS when both files are set.
type SSLConfig struct {
	Key  string `json:"key" yaml:"key" toml:"key"`
	Cert string `json:"cert" yaml:"cert" toml:"cert"`
}

// Enabled reports whether TLS is configured.
func (s SSLConfig) Enabled() bool {
	return s.Key != "" && s.Cert != ""
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			Base:            "/wetty/",
			Title:           "WeTTY - The Web Terminal Emulator",
			AssetsDir:       "client",
			MaxConnections:  1024,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		SSH: SSHConfig{
			Host:       "localhost",
			Port:       22,
			Auth:       command.AuthPassword,
			KnownHosts: "/dev/null",
		},
		Session: SessionConfig{
			PromptTimeout:  Duration(2 * time.Minute),
			ReadBufferSize: 32 * 1024,
			InputQueue:     64,
			SendQueue:      64,
			MaxMessageSize: 1 << 20,
			WriteTimeout:   Duration(10 * time.Second),
			PingInterval:   Duration(30 * time.Second),
			KillGrace:      Duration(3 * time.Second),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
		Command:   command.LoginCommand,
		ThemesDir: "themes",
	}
}

// LoadEnv overlays environment variables onto cfg. Unset variables leave
// fields untouched.
func LoadEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	return nil
}

// Load builds configuration from defaults, the config file named by
// --conf, the environment and finally command-line flags.
func Load(args []string) (*Config, error) {
	flags := NewFlags()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if path := flags.ConfigFile(); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := LoadEnv(cfg); err != nil {
		return nil, err
	}
	flags.Apply(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize trims values into their canonical form.
func (c *Config) Normalize() {
	c.Server.Base = NormalizeBase(c.Server.Base)
	c.Command = strings.TrimSpace(c.Command)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// NormalizeBase returns base with a leading slash and no trailing slash.
// The root path normalizes to the empty string.
func NormalizeBase(base string) string {
	base = strings.Trim(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	return "/" + base
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Policy converts the ssh section into the resolver's policy.
func (s SSHConfig) Policy() command.Policy {
	return command.Policy{
		Host:               s.Host,
		User:               s.User,
		Port:               s.Port,
		Auth:               s.Auth,
		Pass:               s.Pass,
		Key:                s.Key,
		Config:             s.Config,
		KnownHosts:         s.KnownHosts,
		AllowRemoteHosts:   s.AllowRemoteHosts,
		AllowRemoteCommand: s.AllowRemoteCommand,
	}
}

// Duration is a time.Duration read from strings such as "30s" in config
// files and the environment.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
