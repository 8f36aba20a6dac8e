package domain

import "errors"

// Error kinds. Every error leaving the engine wraps exactly one of these.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrForbidden        = errors.New("forbidden")
	ErrUnavailable      = errors.New("unavailable")
)

var (
	ErrDefinitionNotFound = wrap(ErrNotFound, "matchmaking not found")
	ErrDefinitionExists   = wrap(ErrConflict, "matchmaking already exists")
	ErrGatheringNotFound  = wrap(ErrNotFound, "gathering not found")
	ErrPasscodeNotFound   = wrap(ErrNotFound, "passcode not found")
	ErrContextNotFound    = wrap(ErrNotFound, "search context not found")
	ErrNotJoinable        = wrap(ErrConflict, "gathering is not open")
	ErrAlreadyJoined      = wrap(ErrConflict, "already joined another gathering")
	ErrPasscodeInUse      = wrap(ErrConflict, "passcode in use")
	ErrGatheringsOpen     = wrap(ErrConflict, "matchmaking has open gatherings")
	ErrNotCreator         = wrap(ErrForbidden, "only the gathering creator may do this")
	ErrNotOwner           = wrap(ErrForbidden, "only the matchmaking owner may do this")
	ErrThrottled          = wrap(ErrUnavailable, "service class throughput exceeded")
	ErrPasscodeExhausted  = wrap(ErrUnavailable, "no free passcode")
	ErrWrongStrategy      = wrap(ErrInvalidArgument, "matchmaking uses a different strategy")
)

type kindError struct {
	kind error
	msg  string
}

func wrap(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Kind names used on the wire.
const (
	KindInvalidArgument  = "invalid_argument"
	KindNotFound         = "not_found"
	KindConflict         = "conflict"
	KindCapacityExceeded = "capacity_exceeded"
	KindForbidden        = "forbidden"
	KindUnavailable      = "unavailable"
	KindInternal         = "internal"
)

// KindOf names the taxonomy kind err belongs to, or KindInternal.
func KindOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCapacityExceeded):
		return KindCapacityExceeded
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}

// Retryable reports whether a caller may retry err unchanged after backing off.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
