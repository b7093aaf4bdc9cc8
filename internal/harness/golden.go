package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loadkit/internal/record"
)

// Snapshot returns the canonical JSON of a run: the step traces and the
// final cache. It is byte-identical across runs of the same scenario.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, s := range result.Steps {
		m := map[string]any{
			"call":       s.Call,
			"convention": s.Convention,
			"keys":       s.Keys,
		}
		if s.LoadID != "" {
			m["load_id"] = s.LoadID
		}
		if s.Events != 0 {
			m["events"] = s.Events
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		steps[i] = m
	}

	cache := make(map[string]any, len(result.Cache))
	for coll, set := range result.Cache {
		if set == nil {
			set = record.Set{}
		}
		cache[coll] = set
	}

	return record.MarshalCanonical(map[string]any{
		"scenario": name,
		"steps":    steps,
		"cache":    cache,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
