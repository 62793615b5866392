package host

import "fmt"

// Kind distinguishes host failure modes.
type Kind string

const (
	KindUnknownHost Kind = "unknown_host"
	KindNotFound    Kind = "not_found"
	KindExit        Kind = "exit"
	KindTimeout     Kind = "timeout"
	KindRateLimit   Kind = "rate_limit"
)

// Error is returned by host construction and invocation.
type Error struct {
	Host     Name
	Kind     Kind
	ExitCode int
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownHost:
		return fmt.Sprintf("unsupported host '%s' (supported: %s)", e.Host, e.Detail)
	case KindNotFound:
		return fmt.Sprintf("The host CLI '%s' is not installed or not in PATH. Hint: %s", e.Host, e.Detail)
	case KindTimeout:
		return fmt.Sprintf("The host '%s' did not respond within %s and was killed", e.Host, e.Detail)
	case KindRateLimit:
		return fmt.Sprintf("The host '%s' was not invoked: rate limiter error: %s", e.Host, e.Detail)
	default:
		return fmt.Sprintf("The host '%s' returned an error: %s", e.Host, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
