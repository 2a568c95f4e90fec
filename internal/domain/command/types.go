package command

import (
	"strings"
)

// Auth modes understood by ssh's PreferredAuthentications.
const (
	AuthPassword  = "password"
	AuthPublicKey = "publickey"
	AuthKeyboard  = "keyboard-interactive"
	AuthNone      = "none"
)

// LoginCommand is the default command meaning "interactive login".
const LoginCommand = "login"

// Policy is the static ssh policy supplied by configuration.
type Policy struct {
	Host       string
	User       string
	Port       int
	Auth       string
	Pass       string
	Key        string
	Config     string
	KnownHosts string

	// AllowRemoteHosts lets clients choose host, user and port.
	AllowRemoteHosts bool
	// AllowRemoteCommand lets clients choose the remote command.
	AllowRemoteCommand bool
}

// Request carries what a client declared when connecting. Every field is
// untrusted.
type Request struct {
	User       string
	Host       string
	Port       int
	Command    string
	RemoteAddr string

	promptedUser string
}

// Spec is a resolved, ready-to-execute argument vector.
type Spec struct {
	// Args holds the full argv; Args[0] is the executable.
	Args []string
	// SSH is set when the spec invokes the ssh client.
	SSH bool
	// Target is user@host for ssh specs, empty otherwise.
	Target string

	secrets []string
}

// Path returns the executable.
func (s Spec) Path() string {
	if len(s.Args) == 0 {
		return ""
	}
	return s.Args[0]
}

// Argv returns the arguments after the executable.
func (s Spec) Argv() []string {
	if len(s.Args) < 2 {
		return nil
	}
	return s.Args[1:]
}

// Redacted returns a copy of Args with authentication material masked.
func (s Spec) Redacted() []string {
	out := make([]string, len(s.Args))
	copy(out, s.Args)
	for i, a := range out {
		for _, secret := range s.secrets {
			if secret != "" && a == secret {
				out[i] = "******"
			}
		}
	}
	return out
}

// String renders the redacted argv for logs.
func (s Spec) String() string {
	return strings.Join(s.Redacted(), " ")
}

// Empty reports whether nothing was resolved.
func (s Spec) Empty() bool {
	return len(s.Args) == 0
}
