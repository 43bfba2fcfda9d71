package services

import "errors"

var (
	// ErrBackendUnreachable covers failed liveness checks and transport errors
	ErrBackendUnreachable = errors.New("backend unreachable")
	// ErrBackendRejected is a non-2xx answer carrying an error payload
	ErrBackendRejected = errors.New("backend rejected request")
	// ErrJobFailed is a job the backend reported as status=error
	ErrJobFailed = errors.New("download job failed")
	// ErrJobTimedOut is a job still running when the attempt ceiling ran out
	ErrJobTimedOut = errors.New("download job timed out")
	// ErrEntityUnresolvable marks a candidate without a usable name or identity.
	// It is never surfaced to the user.
	ErrEntityUnresolvable = errors.New("entity unresolvable")

	ErrControlNotFound = errors.New("control not found")
	ErrControlBusy     = errors.New("control is not actionable")
	ErrNoPageEntity    = errors.New("current page does not describe a release")
)
