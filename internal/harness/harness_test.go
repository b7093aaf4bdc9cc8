package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadkit/internal/config"
)

func mustLoad(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	return s
}

func requirePass(t *testing.T, result *Result) {
	t.Helper()
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRunWithGolden_SiteBasics(t *testing.T) {
	result, err := RunWithGolden(t, mustLoad(t, "site_basics"))
	require.NoError(t, err)
	requirePass(t, result)
}

func TestRun_Overrides(t *testing.T) {
	result, err := Run(mustLoad(t, "overrides"))
	require.NoError(t, err)
	requirePass(t, result)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, "deferred", result.Steps[1].Convention)
	assert.Equal(t, "stream", result.Steps[2].Convention)
	assert.Equal(t, 1, result.Steps[2].Events)
}

func TestRun_Failures(t *testing.T) {
	result, err := Run(mustLoad(t, "failures"))
	require.NoError(t, err)
	requirePass(t, result)

	assert.Contains(t, result.Steps[0].Error, "STAGE_FAILED")
	assert.Empty(t, result.Steps[1].LoadID)
	assert.Equal(t, []string{"pages/ok.html"}, result.Steps[2].Keys)
}

func TestRun_ReportsUnmetExpectations(t *testing.T) {
	count := 5
	scenario := &Scenario{
		Name:        "unmet",
		Files:       map[string]string{"a.html": "a"},
		Collections: []config.CollectionConfig{{Singular: "page", Plural: "pages"}},
		Steps: []Step{
			{Call: "pages", Args: []any{"a.html"}, Expect: &Expect{Keys: []string{"b.html"}}},
			{Call: "pages", Args: []any{"missing.html"}},
			{Call: "pages", Args: []any{"a.html"}, Expect: &Expect{Error: "boom"}},
		},
		Assertions: []Assertion{
			{Type: AssertCount, Collection: "pages", Count: &count},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "step 1 (pages): keys")
	assert.Contains(t, result.Errors[1], "step 2 (pages): unexpected error")
	assert.Contains(t, result.Errors[2], "expected an error")
	assert.Contains(t, result.Errors[3], "Assertion failed: count")
}

func TestRun_DefaultCollections(t *testing.T) {
	scenario := &Scenario{
		Name:  "defaults",
		Files: map[string]string{"x.html": "x"},
		Steps: []Step{{Call: "layouts", Args: []any{"x.html"}}},
	}

	h, err := New(scenario)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, []string{
		"include", "includes", "layout", "layouts",
		"page", "pages", "partial", "partials",
	}, h.Engine().Accessors())
}

func TestSnapshot_Deterministic(t *testing.T) {
	first, err := Run(mustLoad(t, "overrides"))
	require.NoError(t, err)
	second, err := Run(mustLoad(t, "overrides"))
	require.NoError(t, err)

	a, err := Snapshot("overrides", first)
	require.NoError(t, err)
	b, err := Snapshot("overrides", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCheckExpect(t *testing.T) {
	events := 2
	tests := []struct {
		name   string
		expect *Expect
		trace  StepTrace
		err    error
		want   int
	}{
		{"success", nil, StepTrace{}, nil, 0},
		{"keys match unordered", &Expect{Keys: []string{"b", "a"}}, StepTrace{Keys: []string{"a", "b"}}, nil, 0},
		{"empty keys", &Expect{Keys: []string{}}, StepTrace{Keys: []string{}}, nil, 0},
		{"events mismatch", &Expect{Events: &events}, StepTrace{Events: 1}, nil, 1},
		{"error substring", &Expect{Error: "nope"}, StepTrace{}, assertErr("it said nope"), 0},
		{"wrong substring", &Expect{Error: "yes"}, StepTrace{}, assertErr("it said nope"), 1},
		{"code on plain error", &Expect{Code: "STAGE_FAILED"}, StepTrace{}, assertErr("x"), 1},
		{"kind mismatch", &Expect{Kind: "cycle"}, StepTrace{}, assertErr("x"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := checkExpect(Step{Call: "pages", Expect: tt.expect}, tt.trace, tt.err)
			assert.Len(t, msgs, tt.want, "%v", msgs)
		})
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
