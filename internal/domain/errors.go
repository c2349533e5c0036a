package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthorized    = errors.New("unauthorized access")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("resource already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDeliveryFailure = errors.New("delivery failure")
	ErrInternal        = errors.New("internal server error")
)

// ErrInvalidReply is returned when a reply target does not resolve to a
// message in the same context. It also matches ErrInvalidArgument.
var ErrInvalidReply = invalidReplyError{}

type invalidReplyError struct{}

func (invalidReplyError) Error() string { return "invalid argument: reply target not found in context" }

func (invalidReplyError) Is(target error) bool { return target == ErrInvalidArgument }

// ErrorCode maps an error onto the short code used in socket error events.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
