package security

import "fmt"

// Error is a SecurityError: every failure in the access-control admission
// chain (missing file, bad signature, no matching rule/grant) carries its
// own Stage and Reason, independent of whatever logging happens to be
// configured -- the caller gets this error back, it never just logs and
// carries on.
type Error struct {
	Stage  string // eg. "governance", "permissions", "identity"
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("security error: %s: %s", e.Stage, e.Reason)
}

func wrap(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Reason: err.Error()}
}
