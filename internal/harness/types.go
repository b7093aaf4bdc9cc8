package harness

import "github.com/roach88/loadkit/internal/record"

// StepTrace is the observed outcome of one step.
type StepTrace struct {
	Call       string   `json:"call"`
	Convention string   `json:"convention"`
	LoadID     string   `json:"load_id,omitempty"`
	Keys       []string `json:"keys"`
	// Events is the number of stream events; zero for single-result loads.
	Events int    `json:"events,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepTrace `json:"steps"`

	// Cache is every collection's records after the last step.
	Cache map[string]record.Set `json:"cache"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Cache:  map[string]record.Set{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
