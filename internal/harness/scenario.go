package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loadkit/internal/config"
	"github.com/roach88/loadkit/internal/loader"
)

// Scenario is one load test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// BaseDir is the directory file patterns resolve against, relative to
	// the scenario file.
	BaseDir string `yaml:"base_dir,omitempty"`

	// Files are written into a fresh temporary base directory. Files and
	// BaseDir are mutually exclusive.
	Files map[string]string `yaml:"files,omitempty"`

	// Collections to create. Empty means config.Default().
	Collections []config.CollectionConfig `yaml:"collections,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir is the directory of the scenario file, if loaded from one.
	dir string
}

// Step is one accessor call.
type Step struct {
	// Call is the accessor name, singular or plural.
	Call string `yaml:"call"`

	// Args are the positional call arguments.
	Args []any `yaml:"args,omitempty"`

	// Locals are passed as record.Locals after Args.
	Locals map[string]any `yaml:"locals,omitempty"`

	// Convention overrides the collection's convention for this call.
	Convention string `yaml:"convention,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect validates one step's outcome. A step without Expect must succeed.
type Expect struct {
	// Error is a substring of the expected error. Empty means success
	// unless Code or Kind is set.
	Error string `yaml:"error,omitempty"`

	// Code is the expected engine.ErrorCode of a LoadError.
	Code string `yaml:"code,omitempty"`

	// Kind is the expected error category; see errorKinds.
	Kind string `yaml:"kind,omitempty"`

	// Keys are the exact keys the load returned.
	Keys []string `yaml:"keys,omitempty"`

	// Events is the number of stream events.
	Events *int `yaml:"events,omitempty"`
}

func (e *Expect) wantsError() bool {
	return e != nil && (e.Error != "" || e.Code != "" || e.Kind != "")
}

// Assertion validates the final engine state.
type Assertion struct {
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection,omitempty"`
	Keys       []string       `yaml:"keys,omitempty"`
	Count      *int           `yaml:"count,omitempty"`
	Key        string         `yaml:"key,omitempty"`
	Content    *string        `yaml:"content,omitempty"`
	Data       map[string]any `yaml:"data,omitempty"`
	State      string         `yaml:"state,omitempty"`
	Status     string         `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertKeys    = "keys"
	AssertCount   = "count"
	AssertRecord  = "record"
	AssertState   = "state"
	AssertJournal = "journal"
)

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes and validates a scenario. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the scenario for structural errors.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: name is required")
	}
	if s.BaseDir != "" && len(s.Files) > 0 {
		return fmt.Errorf("scenario %s: base_dir and files are mutually exclusive", s.Name)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %s: at least one step is required", s.Name)
	}

	for i, step := range s.Steps {
		if step.Call == "" {
			return fmt.Errorf("scenario %s: steps[%d]: call is required", s.Name, i)
		}
		if step.Convention != "" {
			if _, err := loader.ParseConvention(step.Convention); err != nil {
				return fmt.Errorf("scenario %s: steps[%d]: %w", s.Name, i, err)
			}
		}
		if step.Expect != nil && step.Expect.Kind != "" {
			if _, ok := errorKinds[step.Expect.Kind]; !ok {
				return fmt.Errorf("scenario %s: steps[%d]: unknown error kind %q", s.Name, i, step.Expect.Kind)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("scenario %s: assertions[%d]: %w", s.Name, i, err)
		}
	}
	return nil
}

func (a Assertion) validate() error {
	switch a.Type {
	case AssertKeys, AssertCount, AssertRecord, AssertState:
		if a.Collection == "" {
			return fmt.Errorf("%s assertion requires collection", a.Type)
		}
	case AssertJournal:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	switch {
	case a.Type == AssertCount && a.Count == nil:
		return fmt.Errorf("count assertion requires count")
	case a.Type == AssertJournal && a.Count == nil:
		return fmt.Errorf("journal assertion requires count")
	case a.Type == AssertRecord && a.Key == "":
		return fmt.Errorf("record assertion requires key")
	case a.Type == AssertState && a.State == "":
		return fmt.Errorf("state assertion requires state")
	}
	return nil
}
