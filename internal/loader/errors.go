package loader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEntry is returned when a registration has an empty name, no
// stages, or a nil stage.
var ErrInvalidEntry = errors.New("loader: invalid entry")

// UnknownLoaderError is returned when a name is resolved that was never
// registered, either directly or through a Ref.
type UnknownLoaderError struct {
	// Name is the missing loader.
	Name string
	// Referrer is the loader whose Ref pointed at Name, if any.
	Referrer string
}

func (e *UnknownLoaderError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("loader %q: unknown loader (referenced by %q)", e.Name, e.Referrer)
	}
	return fmt.Sprintf("loader %q: unknown loader", e.Name)
}

// DuplicateRegistrationError is returned when a name is registered again
// under a different convention, or when Add meets a name already taken.
type DuplicateRegistrationError struct {
	Name      string
	Existing  Convention
	Requested Convention
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("loader %q: already registered as %s, cannot register as %s",
		e.Name, e.Existing, e.Requested)
}

// CyclicChainError is returned when Ref stages form a cycle.
type CyclicChainError struct {
	// Path is the cycle, closed on the repeated name: ["a", "b", "a"].
	Path []string
}

func (e *CyclicChainError) Error() string {
	return fmt.Sprintf("loader chain cycle: %s", strings.Join(e.Path, " → "))
}

// StageMismatchError is returned when a Stream stage would run inside a
// single-result chain.
type StageMismatchError struct {
	// Loader is the entry that contains (or references) the stream stage.
	Loader string
	// Convention is the convention of the chain being built.
	Convention Convention
	// Stage is the offending stage's convention.
	Stage Convention
}

func (e *StageMismatchError) Error() string {
	return fmt.Sprintf("loader %q: %s stage cannot run in a %s chain", e.Loader, e.Stage, e.Convention)
}

// IsUnknownLoader reports whether err is an UnknownLoaderError.
func IsUnknownLoader(err error) bool {
	var ue *UnknownLoaderError
	return errors.As(err, &ue)
}

// IsDuplicateRegistration reports whether err is a DuplicateRegistrationError.
func IsDuplicateRegistration(err error) bool {
	var de *DuplicateRegistrationError
	return errors.As(err, &de)
}

// IsCycleError reports whether err is a CyclicChainError.
func IsCycleError(err error) bool {
	var ce *CyclicChainError
	return errors.As(err, &ce)
}

// IsStageMismatch reports whether err is a StageMismatchError.
func IsStageMismatch(err error) bool {
	var se *StageMismatchError
	return errors.As(err, &se)
}
