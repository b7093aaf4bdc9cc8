package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/loadkit/internal/loader"
)

// ErrMissingCallback is returned when a Callback-convention load is invoked
// without a trailing completion function. No stage runs.
var ErrMissingCallback = errors.New("callback convention requires a completion function")

// ErrorCode identifies the category of a LoadError.
type ErrorCode string

const (
	// ErrCodeStageFailed indicates a stage returned, rejected or emitted an error.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"

	// ErrCodeStagePanic indicates a stage panicked.
	ErrCodeStagePanic ErrorCode = "STAGE_PANIC"

	// ErrCodeInvalidOutput indicates the chain produced a value that is not a
	// record set.
	ErrCodeInvalidOutput ErrorCode = "INVALID_OUTPUT"

	// ErrCodeCanceled indicates the load's context ended before completion.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// LoadError wraps an error surfaced while running a loader chain.
//
// Collection is empty for standalone loads (Engine.LoadWith). Stage is the
// index of the failing step within the resolved plan, or -1 when the error
// did not come from a specific stage.
type LoadError struct {
	Code       ErrorCode
	Collection string
	Loader     string
	Stage      int
	Convention loader.Convention
	LoadID     string
	Err        error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	target := e.Collection
	if target == "" {
		target = e.Loader
	}
	if e.Stage >= 0 {
		return fmt.Sprintf("%s: load %s (%s, loader=%s, stage=%d): %v",
			e.Code, target, e.Convention, e.Loader, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: load %s (%s): %v", e.Code, target, e.Convention, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ArgumentError is returned when call-site arguments cannot be classified.
type ArgumentError struct {
	// Index is the position of the offending argument.
	Index  int
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d: %s", e.Index, e.Reason)
}

// UnknownAccessorError is returned by Engine.Call for a name no collection
// installed.
type UnknownAccessorError struct {
	Name string
}

func (e *UnknownAccessorError) Error() string {
	return fmt.Sprintf("unknown accessor %q", e.Name)
}

// IsLoadError reports whether err is a LoadError.
// Uses errors.As to handle wrapped errors.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsArgumentError reports whether err is an ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsUnknownAccessor reports whether err is an UnknownAccessorError.
func IsUnknownAccessor(err error) bool {
	var ue *UnknownAccessorError
	return errors.As(err, &ue)
}

// IsMissingCallback reports whether err is ErrMissingCallback.
func IsMissingCallback(err error) bool {
	return errors.Is(err, ErrMissingCallback)
}
