package jobs

import "errors"

// Kind is a machine-readable error discriminator surfaced to HTTP
// clients. It is not a type hierarchy — just a flat taxonomy, matched
// with errors.Is against the sentinel values below.
type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotOwner            Kind = "not_owner"
	KindNotFound            Kind = "not_found"
	KindAlreadyClaimed      Kind = "already_claimed"
	KindTerminalStatus      Kind = "terminal_status"
	KindNotRunning          Kind = "not_running"
	KindMaxAttemptsReached  Kind = "max_attempts_reached"
	KindLocked              Kind = "locked"
	KindInternal            Kind = "internal"
)

// Error pairs a Kind with a human-readable message. Callers use
// errors.As to recover the Kind and map it to an HTTP status.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// KindOf extracts the Kind from err, or KindInternal if err does not
// carry one (including nil, which callers should not pass in practice).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrUnauthorized       = newErr(KindUnauthorized, "unauthorized")
	ErrForbidden          = newErr(KindForbidden, "forbidden")
	ErrNotOwner           = newErr(KindNotOwner, "not_owner")
	ErrNotFound           = newErr(KindNotFound, "not_found")
	ErrAlreadyClaimed     = newErr(KindAlreadyClaimed, "already_claimed")
	ErrTerminalStatus     = newErr(KindTerminalStatus, "terminal_status")
	ErrNotRunning         = newErr(KindNotRunning, "not_running")
	ErrMaxAttemptsReached = newErr(KindMaxAttemptsReached, "max_attempts_reached")
	ErrLocked             = newErr(KindLocked, "locked")
)
