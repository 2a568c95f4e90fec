package command

import (
	"errors"
	"fmt"
)

// ErrUserRequired is returned when an ssh invocation has no user from
// either the policy or the client. Callers may prompt for one and resolve
// again.
var ErrUserRequired = errors.New("ssh user required")

// PolicyViolation reports a request forbidden or unsatisfiable under the
// server's static configuration. The message is safe to show to clients.
type PolicyViolation struct {
	Field  string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation: %s: %s", e.Field, e.Reason)
}

// IsPolicyViolation reports whether err is, or wraps, a PolicyViolation.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolation
	return errors.As(err, &pv)
}

func violation(field, reason string) error {
	return &PolicyViolation{Field: field, Reason: reason}
}
