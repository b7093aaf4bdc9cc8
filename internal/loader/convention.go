package loader

import (
	"fmt"
	"strings"
)

// Convention identifies how a loader signals completion.
type Convention int

const (
	// Sync loaders return their output.
	Sync Convention = iota
	// Callback loaders call a completion function with (err, output).
	Callback
	// Deferred loaders return a future that settles with the output.
	Deferred
	// Stream loaders emit zero or more outputs per input.
	Stream
)

// Conventions lists every convention in declaration order.
var Conventions = []Convention{Sync, Callback, Deferred, Stream}

// String returns the lower-case name of the convention.
func (c Convention) String() string {
	switch c {
	case Sync:
		return "sync"
	case Callback:
		return "callback"
	case Deferred:
		return "deferred"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("convention(%d)", int(c))
	}
}

// Valid reports whether c is one of the four conventions.
func (c Convention) Valid() bool {
	return c >= Sync && c <= Stream
}

// ParseConvention parses a convention name. "async" and "promise" are
// accepted as aliases for callback and deferred. The empty string is sync.
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sync":
		return Sync, nil
	case "callback", "async":
		return Callback, nil
	case "deferred", "promise":
		return Deferred, nil
	case "stream":
		return Stream, nil
	default:
		return 0, fmt.Errorf("unknown convention %q: must be one of sync, callback, deferred, stream", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Convention) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid convention %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Convention) UnmarshalText(text []byte) error {
	parsed, err := ParseConvention(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
