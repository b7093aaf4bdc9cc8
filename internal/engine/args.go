package engine

import (
	"fmt"
	"reflect"

	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/record"
)

// Override selects the convention of a single call. Build one with Using.
type Override struct {
	Convention loader.Convention
}

// Using returns a call argument that runs the call under conv instead of the
// collection's registered convention.
func Using(conv loader.Convention) Override {
	return Override{Convention: conv}
}

// Call is a classified set of call-site arguments.
type Call struct {
	// Convention is the effective convention for the call.
	Convention loader.Convention

	// Overridden is true when a Using argument set Convention.
	Overridden bool

	// Targets are the opaque load targets, in call order.
	Targets []any

	// Stages are ad-hoc stages to append after the collection's chain.
	Stages []loader.Stage

	// Locals are the shared options passed to every stage. Never nil.
	Locals record.Locals

	// Done is the completion function of a Callback call, nil otherwise.
	Done func(error, record.Set)
}

// Input returns the value handed to the first stage: nil without targets,
// the target itself for exactly one, and loader.Targets otherwise.
func (c Call) Input() any {
	switch len(c.Targets) {
	case 0:
		return nil
	case 1:
		return c.Targets[0]
	default:
		return loader.Targets(c.Targets)
	}
}

// Classify sorts call-site arguments into a Call. conv is the convention
// the call runs under unless an Override argument says otherwise.
//
// Rules, applied in order:
//  1. Stages, []loader.Stage values and bare functions of a stage shape are
//     collected as ad-hoc stages, in argument order.
//  2. Override arguments set the convention; the last one wins.
//  3. A trailing completion function (loader.DoneFunc, func(error, record.Set)
//     or func(error, any)) is taken as Done. It is an ArgumentError under any
//     convention but Callback, and so is a completion function that is not
//     last.
//  4. A record.Locals argument is always the locals. Otherwise, when more
//     than one positional argument remains, a trailing map[string]any is.
//  5. Whatever remains are the targets.
//
// A Callback call without a completion function fails with
// ErrMissingCallback.
func Classify(conv loader.Convention, args ...any) (Call, error) {
	call := Call{Convention: conv}

	type positional struct {
		index int
		value any
	}
	var rest []positional

	for i, arg := range args {
		switch v := arg.(type) {
		case Override:
			if !v.Convention.Valid() {
				return Call{}, &ArgumentError{Index: i, Reason: fmt.Sprintf("invalid convention %d", int(v.Convention))}
			}
			call.Convention = v.Convention
			call.Overridden = true
			continue
		case []loader.Stage:
			for j, st := range v {
				s, ok := loader.AsStage(st)
				if !ok {
					return Call{}, &ArgumentError{Index: i, Reason: fmt.Sprintf("stage %d is nil", j)}
				}
				call.Stages = append(call.Stages, s)
			}
			continue
		}

		if st, ok := loader.AsStage(arg); ok {
			call.Stages = append(call.Stages, st)
			continue
		}
		if _, isStage := arg.(loader.Stage); isStage {
			return Call{}, &ArgumentError{Index: i, Reason: "nil stage"}
		}
		rest = append(rest, positional{index: i, value: arg})
	}

	for j, p := range rest {
		done, ok := asDone(p.value)
		if !ok {
			if p.value != nil && reflect.TypeOf(p.value).Kind() == reflect.Func {
				return Call{}, &ArgumentError{Index: p.index, Reason: fmt.Sprintf("unsupported function type %T", p.value)}
			}
			continue
		}
		if j != len(rest)-1 {
			return Call{}, &ArgumentError{Index: p.index, Reason: "completion function must be the last argument"}
		}
		if call.Convention != loader.Callback {
			return Call{}, &ArgumentError{
				Index:  p.index,
				Reason: fmt.Sprintf("completion function given to a %s call", call.Convention),
			}
		}
		if done == nil {
			return Call{}, &ArgumentError{Index: p.index, Reason: "nil completion function"}
		}
		call.Done = done
		rest = rest[:j]
	}

	if call.Convention == loader.Callback && call.Done == nil {
		return Call{}, ErrMissingCallback
	}

	call.Locals = record.Locals{}
	localsAt := -1
	for j := len(rest) - 1; j >= 0; j-- {
		if l, ok := rest[j].value.(record.Locals); ok {
			call.Locals = l.Clone()
			localsAt = j
			break
		}
	}
	if localsAt < 0 && len(rest) > 1 {
		if m, ok := rest[len(rest)-1].value.(map[string]any); ok {
			call.Locals = record.Locals(m).Clone()
			localsAt = len(rest) - 1
		}
	}

	for j, p := range rest {
		if j != localsAt {
			call.Targets = append(call.Targets, p.value)
		}
	}
	return call, nil
}

// trailingDone returns the completion function of a call that failed to
// classify: the last argument, when it is a non-nil completion function and
// the call runs under Callback after any valid Override.
func trailingDone(conv loader.Convention, args []any) func(error, record.Set) {
	if len(args) == 0 {
		return nil
	}
	for _, arg := range args {
		if o, ok := arg.(Override); ok && o.Convention.Valid() {
			conv = o.Convention
		}
	}
	if conv != loader.Callback {
		return nil
	}
	done, _ := asDone(args[len(args)-1])
	return done
}

// asDone converts the accepted completion function shapes to one type.
// A typed nil function reports ok with a nil result.
func asDone(v any) (func(error, record.Set), bool) {
	switch fn := v.(type) {
	case loader.DoneFunc:
		if fn == nil {
			return nil, true
		}
		return func(err error, set record.Set) { fn(err, boxed(set)) }, true
	case func(error, any):
		if fn == nil {
			return nil, true
		}
		return func(err error, set record.Set) { fn(err, boxed(set)) }, true
	case func(error, record.Set):
		return fn, true
	default:
		return nil, false
	}
}

// boxed keeps a nil set from turning into a non-nil interface value.
func boxed(set record.Set) any {
	if set == nil {
		return nil
	}
	return set
}
