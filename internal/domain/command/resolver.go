package command

import (
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultSSHPort   = 22
	defaultKnownHost = "/dev/null"
	maxUserLength    = 32
)

var (
	userPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)
	hostPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\[\]%-]+$`)
)

// Resolver decides, per connection, which command to run.
type Resolver struct {
	policy         Policy
	defaultCommand string
	forceSSH       bool

	euid  func() int
	shell func() string
}

// NewResolver creates a resolver for the given static policy.
func NewResolver(policy Policy, defaultCommand string, forceSSH bool) *Resolver {
	if policy.Auth == "" {
		policy.Auth = AuthPassword
	}
	if policy.KnownHosts == "" {
		policy.KnownHosts = defaultKnownHost
	}
	return &Resolver{
		policy:         policy,
		defaultCommand: strings.TrimSpace(defaultCommand),
		forceSSH:       forceSSH,
		euid:           os.Geteuid,
		shell:          loginShell,
	}
}

// Policy returns the static policy the resolver enforces.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve produces the command spec for one connection. Client values are
// only honored where the policy allows them; the returned error is a
// *PolicyViolation or ErrUserRequired.
func (r *Resolver) Resolve(req Request) (Spec, error) {
	host, user, port, err := r.target(req)
	if err != nil {
		return Spec{}, err
	}

	if !r.forceSSH && r.defaultCommand != "" && isLocalHost(host) {
		return r.local(req), nil
	}

	if host == "" {
		return Spec{}, violation("host", "ssh is required but no host is configured")
	}

	remote, err := r.remoteCommand(req)
	if err != nil {
		return Spec{}, err
	}

	spec := r.ssh(host, user, port, remote)
	if user == "" {
		return spec, ErrUserRequired
	}
	return spec, nil
}

// target picks host, user and port. Client overrides are a security
// boundary: without AllowRemoteHosts they are ignored.
func (r *Resolver) target(req Request) (host, user string, port int, err error) {
	host, user, port = r.policy.Host, r.policy.User, r.policy.Port

	if r.policy.AllowRemoteHosts {
		if req.Host != "" {
			if !validHost(req.Host) {
				return "", "", 0, violation("host", "invalid host name")
			}
			host = req.Host
		}
		if req.Port != 0 {
			if req.Port < 1 || req.Port > 65535 {
				return "", "", 0, violation("port", "port out of range")
			}
			port = req.Port
		}
		if req.User != "" {
			user = req.User
		}
	}

	if user == "" && req.promptedUser != "" {
		user = req.promptedUser
	}

	if user != "" && !ValidUser(user) {
		return "", "", 0, violation("user", "invalid user name")
	}
	if port == 0 {
		port = defaultSSHPort
	}
	return host, user, port, nil
}

func (r *Resolver) remoteCommand(req Request) (string, error) {
	cmd := r.defaultCommand
	if r.policy.AllowRemoteCommand && strings.TrimSpace(req.Command) != "" {
		cmd = strings.TrimSpace(req.Command)
	}
	if cmd == LoginCommand {
		return "", nil
	}
	if strings.ContainsRune(cmd, 0) {
		return "", violation("command", "command contains NUL byte")
	}
	return cmd, nil
}

func (r *Resolver) local(req Request) Spec {
	args := strings.Fields(r.defaultCommand)
	if len(args) == 1 && args[0] == LoginCommand {
		if r.euid() == 0 {
			return Spec{Args: []string{LoginCommand, "-h", remoteHost(req.RemoteAddr)}}
		}
		// login(1) needs root; fall back to a login shell.
		return Spec{Args: []string{r.shell(), "-l"}}
	}
	return Spec{Args: args}
}

func (r *Resolver) ssh(host, user string, port int, remote string) Spec {
	p := r.policy
	opts := []string{"ssh", "-t"}
	if p.Config != "" {
		opts = append(opts, "-F", p.Config)
	}
	opts = append(opts, "-p", strconv.Itoa(port))
	if p.Auth != AuthNone {
		opts = append(opts, "-o", "PreferredAuthentications="+p.Auth)
	}
	hostChecking := "yes"
	if p.KnownHosts == defaultKnownHost {
		hostChecking = "no"
	}
	opts = append(opts,
		"-o", "UserKnownHostsFile="+p.KnownHosts,
		"-o", "StrictHostKeyChecking="+hostChecking,
		"-o", "EscapeChar=none",
	)
	if p.Key != "" {
		opts = append(opts, "-i", p.Key)
	}

	target := host
	if user != "" {
		target = user + "@" + host
	}
	opts = append(opts, "--", target)
	if remote != "" {
		opts = append(opts, remote)
	}

	spec := Spec{SSH: true, Target: target}
	if p.Pass != "" && p.Key == "" {
		spec.Args = append([]string{"sshpass", "-p", p.Pass}, opts...)
		spec.secrets = []string{p.Pass}
	} else {
		spec.Args = opts
	}
	return spec
}

// WithPromptedUser returns a copy of req carrying a username typed at the
// login prompt. It only fills a missing user and never overrides one set
// by the policy.
func (req Request) WithPromptedUser(user string) Request {
	req.promptedUser = user
	return req
}

// ValidUser reports whether name is safe to pass to ssh as a user.
func ValidUser(name string) bool {
	return len(name) <= maxUserLength && userPattern.MatchString(name)
}

func validHost(host string) bool {
	return len(host) <= 253 && !strings.HasPrefix(host, "-") && hostPattern.MatchString(host)
}

func isLocalHost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return false
}

func remoteHost(addr string) string {
	if addr == "" {
		return "localhost"
	}
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

func loginShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
