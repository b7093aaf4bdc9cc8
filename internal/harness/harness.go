package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/roach88/loadkit/internal/config"
	"github.com/roach88/loadkit/internal/engine"
	"github.com/roach88/loadkit/internal/loader"
	"github.com/roach88/loadkit/internal/loaders"
	"github.com/roach88/loadkit/internal/record"
	"github.com/roach88/loadkit/internal/store"
	"github.com/roach88/loadkit/internal/testutil"
)

// StepTimeout bounds each step. A step that has not completed by then
// fails with a CANCELED load error.
const StepTimeout = 10 * time.Second

// errorKinds maps Expect.Kind values to error predicates.
var errorKinds = map[string]func(error) bool{
	"load":             engine.IsLoadError,
	"argument":         engine.IsArgumentError,
	"missing_callback": engine.IsMissingCallback,
	"unknown_accessor": engine.IsUnknownAccessor,
	"unknown_loader":   loader.IsUnknownLoader,
	"cycle":            loader.IsCycleError,
	"stage_mismatch":   loader.IsStageMismatch,
	"duplicate":        loader.IsDuplicateRegistration,
}

// Harness is the scenario execution environment: a fresh engine whose
// default loaders read from the scenario's base directory, journaled to an
// in-memory store.
type Harness struct {
	engine  *engine.Engine
	store   *store.Store
	baseDir string
	logger  *slog.Logger
	cleanup []func()
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Prepare the base directory and an in-memory journal
// 2. Create the scenario's collections on a fresh engine
// 3. Execute steps in order, checking each step's expectations
// 4. Evaluate assertions against the final engine state
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := New(scenario)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		trace, err := h.RunStep(ctx, step)
		result.Steps = append(result.Steps, trace)
		for _, msg := range checkExpect(step, trace, err) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i+1, step.Call, msg))
		}
	}

	actx := &AssertionContext{Ctx: ctx, Engine: h.engine, Store: h.store}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	result.Cache = h.engine.Cache().All()
	return result, nil
}

// New prepares a harness for scenario. Callers must Close it.
func New(scenario *Scenario) (*Harness, error) {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	if err := h.prepareBaseDir(scenario); err != nil {
		h.Close()
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h.store = st
	h.cleanup = append(h.cleanup, func() { st.Close() })

	collections := scenario.Collections
	if len(collections) == 0 {
		collections = config.Default().Collections
	}
	specs, err := config.Config{Collections: collections}.Specs()
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	h.engine, err = engine.New(
		engine.WithLogger(h.logger),
		engine.WithJournal(st),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("load")),
		engine.WithDefaultLoader(loaders.New(h.baseDir).Stage),
		engine.WithDefaultCollections(specs...),
	)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return h, nil
}

// Engine returns the harness engine.
func (h *Harness) Engine() *engine.Engine {
	return h.engine
}

// Close releases the journal and removes any temporary base directory.
func (h *Harness) Close() {
	for i := len(h.cleanup) - 1; i >= 0; i-- {
		h.cleanup[i]()
	}
	h.cleanup = nil
}

func (h *Harness) prepareBaseDir(s *Scenario) error {
	if len(s.Files) == 0 {
		h.baseDir = s.dir
		if s.BaseDir != "" {
			h.baseDir = s.BaseDir
			if !filepath.IsAbs(s.BaseDir) {
				h.baseDir = filepath.Join(s.dir, s.BaseDir)
			}
		}
		return nil
	}

	dir, err := os.MkdirTemp("", "loadkit-scenario-*")
	if err != nil {
		return fmt.Errorf("create scenario dir: %w", err)
	}
	h.cleanup = append(h.cleanup, func() { os.RemoveAll(dir) })
	h.baseDir = dir

	for name, content := range s.Files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// RunStep performs one call and waits for it to complete.
func (h *Harness) RunStep(ctx context.Context, step Step) (StepTrace, error) {
	ctx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	args := slices.Clone(step.Args)
	if step.Locals != nil {
		args = append(args, record.Locals(step.Locals))
	}
	conv := h.conventionOf(step.Call)
	if step.Convention != "" {
		c, err := loader.ParseConvention(step.Convention)
		if err != nil {
			return StepTrace{Call: step.Call, Error: err.Error()}, err
		}
		conv = c
		args = append(args, engine.Using(c))
	}
	if conv == loader.Callback {
		args = append(args, func(error, record.Set) {})
	}

	res := h.engine.Call(ctx, step.Call, args...)
	trace := StepTrace{
		Call:       step.Call,
		Convention: res.Convention().String(),
		LoadID:     res.LoadID(),
		Keys:       []string{},
	}

	if res.Err() == nil && res.Convention() == loader.Stream {
		events, _ := res.Stream().Collect(ctx)
		trace.Events = len(events)
	}

	set, err := res.Wait(ctx)
	if err != nil {
		trace.Error = err.Error()
		return trace, err
	}
	if keys := set.Keys(); keys != nil {
		trace.Keys = keys
	}
	return trace, nil
}

// conventionOf returns the registered convention of the collection behind
// an accessor name, or Sync if there is none.
func (h *Harness) conventionOf(name string) loader.Convention {
	for _, c := range h.engine.Collections() {
		if c.Plural() == name || c.Singular() == name {
			return c.Convention()
		}
	}
	return loader.Sync
}

// checkExpect compares a step's outcome with its expectations.
func checkExpect(step Step, trace StepTrace, err error) []string {
	var msgs []string
	exp := step.Expect

	switch {
	case !exp.wantsError() && err != nil:
		msgs = append(msgs, fmt.Sprintf("unexpected error: %v", err))
	case exp.wantsError() && err == nil:
		msgs = append(msgs, "expected an error, load succeeded")
	case exp.wantsError():
		if exp.Error != "" && !strings.Contains(err.Error(), exp.Error) {
			msgs = append(msgs, fmt.Sprintf("error %q does not contain %q", err, exp.Error))
		}
		if exp.Code != "" {
			var le *engine.LoadError
			if !errors.As(err, &le) {
				msgs = append(msgs, fmt.Sprintf("expected load error %s, got %T", exp.Code, err))
			} else if string(le.Code) != exp.Code {
				msgs = append(msgs, fmt.Sprintf("expected code %s, got %s", exp.Code, le.Code))
			}
		}
		if exp.Kind != "" && !errorKinds[exp.Kind](err) {
			msgs = append(msgs, fmt.Sprintf("expected %s error, got %T: %v", exp.Kind, err, err))
		}
	}

	if exp == nil {
		return msgs
	}
	if exp.Keys != nil {
		want := slices.Sorted(slices.Values(exp.Keys))
		if !slices.Equal(want, trace.Keys) {
			msgs = append(msgs, fmt.Sprintf("keys: expected %v, got %v", want, trace.Keys))
		}
	}
	if exp.Events != nil && *exp.Events != trace.Events {
		msgs = append(msgs, fmt.Sprintf("events: expected %d, got %d", *exp.Events, trace.Events))
	}
	return msgs
}
