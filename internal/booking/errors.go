package booking

import "errors"

// Client-facing error kinds. Handlers map these to HTTP statuses with
// errors.Is; wrapped messages carry the field or identifier at fault.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrDuplicateRequest = errors.New("duplicate booking request")
	ErrRideClosed       = errors.New("ride closed")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrAlreadyDecided   = errors.New("booking already decided")

	// ErrStorage covers unexpected persistence failures. The cause is
	// logged server-side and never shown to the caller.
	ErrStorage = errors.New("storage failure")
)
