package tunnel

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTunnel is returned for ids that are not in the registry.
	ErrUnknownTunnel = errors.New("unknown tunnel")
	// ErrLaunchFailed matches every *LaunchError.
	ErrLaunchFailed = errors.New("tunnel launch failed")
	// ErrTerminateFailed matches every *TerminateError.
	ErrTerminateFailed = errors.New("tunnel terminate failed")
)

// LaunchError reports that the helper process could not be spawned. The
// tunnel stays stopped and Start may be retried.
type LaunchError struct {
	ID  string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("start tunnel %s: %v", e.ID, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrLaunchFailed }

// TerminateError reports that the termination signal could not be delivered.
// The tunnel is already marked stopped when this is returned.
type TerminateError struct {
	ID  string
	PID int
	Err error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("stop tunnel %s (pid %d): %v", e.ID, e.PID, e.Err)
}

func (e *TerminateError) Unwrap() error { return e.Err }

func (e *TerminateError) Is(target error) bool { return target == ErrTerminateFailed }

func unknown(id string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTunnel, id)
}
