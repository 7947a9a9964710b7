package probe

import (
	"errors"
	"fmt"
)

var (
	ErrCommandFailed  = errors.New("probe command not confirmed")
	ErrWiringCheck    = errors.New("probe wiring check failed")
	ErrTouchModeReset = errors.New("probe reset after touch mode failed")
	ErrTooClose       = errors.New("probe too close to bed")
	ErrProbing        = errors.New("probing error")

	// ErrMalfunction is returned after the probe could not be reset. The
	// shutdown sink has already been invoked when it is seen.
	ErrMalfunction = errors.New("The BLTouch probe is malfunctioning")
)

// EndstopError is a recoverable probe failure reported to the homing caller.
type EndstopError struct {
	Command Command
	Msg     string
	Kind    error
}

func (e *EndstopError) Error() string {
	return e.Msg
}

func (e *EndstopError) Unwrap() error {
	return e.Kind
}

func commandFailed(cmd Command) *EndstopError {
	return &EndstopError{
		Command: cmd,
		Msg:     fmt.Sprintf("BLTouch error when running %s", cmd),
		Kind:    ErrCommandFailed,
	}
}

func isEndstopError(err error) bool {
	var ee *EndstopError
	return errors.As(err, &ee)
}
