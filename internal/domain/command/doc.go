// Package command resolves which executable a terminal session runs.
//
// A Resolver combines the static ssh Policy, the configured default
// command and the force-ssh flag with the untrusted Request a client
// declared when connecting. The result is a Spec: a flat argv passed to
// the process supervisor as discrete tokens, never through a shell.
//
// Client host/user/port are honored only with Policy.AllowRemoteHosts and
// a client command only with Policy.AllowRemoteCommand. Anything the
// policy forbids is either ignored (overrides) or rejected with a
// *PolicyViolation (unsatisfiable requests). Spec.String masks the ssh
// password so specs can be logged.
package command
