package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/store"
)

// AssertionContext is the state assertions are evaluated against.
type AssertionContext struct {
	Ctx    context.Context
	Engine *engine.Engine
	Store  *store.Store
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertion %d: %v", i+1, err))
		}
	}
	return msgs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertKeys:
		return assertKeys(actx.Engine, a)
	case AssertCount:
		return assertCount(actx.Engine, a)
	case AssertRecord:
		return assertRecord(actx.Engine, a)
	case AssertState:
		return assertState(actx.Engine, a)
	case AssertJournal:
		return assertJournal(actx.Ctx, actx.Store, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertKeys checks that a collection holds exactly the expected keys.
func assertKeys(e *engine.Engine, a Assertion) error {
	got := e.Cache().Snapshot(a.Collection).Keys()
	want := slices.Sorted(slices.Values(a.Keys))
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertKeys,
			Expected: fmt.Sprintf("%s keys %v", a.Collection, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertCount(e *engine.Engine, a Assertion) error {
	got := e.Cache().Len(a.Collection)
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d records in %s", *a.Count, a.Collection),
			Actual:   fmt.Sprintf("%d records", got),
		}
	}
	return nil
}

// assertRecord checks a record's content and a subset of its data.
func assertRecord(e *engine.Engine, a Assertion) error {
	r, ok := e.Cache().Get(a.Collection, a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %q in %s", a.Key, a.Collection),
			Actual:   "record not found",
		}
	}
	if a.Content != nil && r.Content != *a.Content {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("%s content %q", a.Key, *a.Content),
			Actual:   fmt.Sprintf("%q", r.Content),
		}
	}
	for field, want := range a.Data {
		got, ok := r.Data[field]
		if !ok || !valuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertRecord,
				Expected: fmt.Sprintf("%s data.%s = %v", a.Key, field, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

func assertState(e *engine.Engine, a Assertion) error {
	got := e.State(a.Collection).String()
	if got != a.State {
		return &AssertionError{
			Type:     AssertState,
			Expected: fmt.Sprintf("%s state %s", a.Collection, a.State),
			Actual:   got,
		}
	}
	return nil
}

// assertJournal counts journaled loads, filtered by collection and status.
func assertJournal(ctx context.Context, st *store.Store, a Assertion) error {
	loads, err := st.ReadLoads(ctx, store.LoadFilter{
		Collection: a.Collection,
		Status:     engine.LoadStatus(a.Status),
	})
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	if len(loads) != *a.Count {
		return &AssertionError{
			Type:     AssertJournal,
			Expected: fmt.Sprintf("%d journaled loads (collection=%q status=%q)", *a.Count, a.Collection, a.Status),
			Actual:   fmt.Sprintf("%d loads", len(loads)),
		}
	}
	return nil
}

// valuesEqual compares YAML-decoded expectations with loaded values,
// treating all numeric types as equal by value.
func valuesEqual(want, got any) bool {
	if w, ok := toFloat(want); ok {
		g, ok := toFloat(got)
		return ok && w == g
	}
	return reflect.DeepEqual(want, got)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
