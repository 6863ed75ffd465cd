package harness

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/schema"
	"github.com/roach88/qdsl/internal/store"
)

var teamEntity = schema.Entity{Name: "Team", Fields: []schema.Field{
	{Name: "id", Type: schema.TypeInteger, PrimaryKey: true},
}}

func loadScenario(t *testing.T, path string) *Scenario {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	return s
}

func parseScenario(t *testing.T, content string) *Scenario {
	t.Helper()
	var s Scenario
	require.NoError(t, yaml.Unmarshal([]byte(content), &s))
	require.NoError(t, validateScenario(&s))
	return &s
}

func TestRun_TeamAges(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "testdata/scenarios/team-ages.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Steps, 3)

	assert.Equal(t, "query", result.Steps[0].Kind)
	assert.Equal(t, []any{"member1", "member2"}, result.Steps[0].Rows)
	assert.Equal(t, "mutation", result.Steps[1].Kind)
	assert.Equal(t, int64(4), *result.Steps[1].Affected)
	assert.Equal(t, int64(3), *result.Steps[2].Count)
}

func TestRun_FetchModesAndErrors(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "testdata/scenarios/paging-and-errors.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass, result.Errors)
	byName := make(map[string]StepResult, len(result.Steps))
	for _, s := range result.Steps {
		byName[s.Name] = s
	}

	assert.Equal(t, []any{[]any{"teamA", int64(15)}, []any{"teamB", int64(35)}}, byName["team averages"].Rows)
	assert.Equal(t, int64(3), *byName["second page"].Total)
	assert.NotContains(t, byName["unfiltered without parameter"].SQL, "WHERE")
	assert.Equal(t, CodeNonUniqueResult, byName["more than one"].Error)
	assert.Equal(t, "OPERAND_TYPE", byName["lower of an integer"].Error)
	assert.Empty(t, byName["first of none"].Rows)
}

func TestRun_RecordsFailures(t *testing.T) {
	s := parseScenario(t, `
name: failing
entities:
  - name: Team
    fields:
      - {name: id, type: integer, primary_key: true}
      - {name: name, type: string}
seed:
  - entity: Team
    rows:
      - {id: 1, name: teamA}
steps:
  - name: wrong count
    query: {from: [Team]}
    expect: {count: 2}
  - name: wrong rows
    query: {from: [Team], select: [name]}
    expect: {rows: [teamB]}
  - name: missing error
    query: {from: [Team]}
    expect: {error: OPERAND_TYPE}
  - name: unexpected error
    query: {from: [Team], select: [{upper: id}]}
  - name: wrong affected
    mutation: {delete: Team}
    expect: {affected: 0}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "wrong count: count")
	assert.Contains(t, result.Errors[1], "wrong rows: rows")
	assert.Contains(t, result.Errors[2], "Expected: OPERAND_TYPE")
	assert.Contains(t, result.Errors[3], "Expected: no error")
	assert.Contains(t, result.Errors[4], "Actual: 1")
}

func TestRun_WrongErrorCode(t *testing.T) {
	s := parseScenario(t, `
name: wrong-code
entities:
  - name: Team
    fields:
      - {name: id, type: integer, primary_key: true}
steps:
  - name: bad field
    query: {from: [Team], select: [nope]}
    expect: {error: OPERAND_TYPE}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Actual: UNKNOWN_FIELD")
}

func TestRun_SetupFailures(t *testing.T) {
	query := &querydoc.Query{From: []string{"Team"}}

	tests := []struct {
		name     string
		scenario *Scenario
		wantErr  string
	}{
		{
			name:     "invalid schema",
			scenario: &Scenario{Name: "x", Entities: []schema.Entity{{Name: "Team"}}, Steps: []Step{{Name: "s", Query: query}}},
			wantErr:  "failed to load schema",
		},
		{
			name: "unknown seed entity",
			scenario: &Scenario{
				Name:     "x",
				Entities: []schema.Entity{teamEntity},
				Seed:     []SeedStep{{Entity: "Ghost", Rows: []map[string]any{{"id": 1}}}},
				Steps:    []Step{{Name: "s", Query: query}},
			},
			wantErr: "failed to seed Ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, loadScenario(t, "testdata/scenarios/team-ages.yaml"))
	require.Error(t, err)
}

func TestRun_WithLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	_, err := Run(context.Background(), loadScenario(t, "testdata/scenarios/team-ages.yaml"), WithLogger(logger))
	require.NoError(t, err)

	require.NotEmpty(t, hook.AllEntries())
	for _, e := range hook.AllEntries() {
		assert.Equal(t, "team-ages", e.Data["scenario"])
		assert.NotEmpty(t, e.Data["run_id"])
	}
}

func TestRun_WithRunIDGenerator(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "testdata/scenarios/team-ages.yaml"),
		WithRunIDGenerator(store.NewFixedGenerator("run-team-ages")))
	require.NoError(t, err)
	assert.Equal(t, "run-team-ages", result.RunID)
}
