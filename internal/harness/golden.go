package harness

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qdsl/internal/ir"
)

// toCanonicalMap converts a result to the map[string]any form accepted by
// ir.MarshalCanonical. Non-integral floats become strings because
// canonical JSON has no floats. The run id is left out.
func (r *Result) toCanonicalMap() map[string]any {
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		m := map[string]any{
			"name": s.Name,
			"kind": s.Kind,
		}
		if s.Fetch != "" {
			m["fetch"] = s.Fetch
		}
		if s.SQL != "" {
			m["sql"] = s.SQL
		}
		if len(s.Args) > 0 {
			m["args"] = snapshotValue(s.Args)
		}
		if s.Kind == "query" && s.Fetch != FetchCount && s.Error == "" {
			m["rows"] = snapshotValue(s.Rows)
		}
		if s.Count != nil {
			m["count"] = *s.Count
		}
		if s.Total != nil {
			m["total"] = *s.Total
		}
		if s.Affected != nil {
			m["affected"] = *s.Affected
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		steps[i] = m
	}
	return map[string]any{
		"scenario": r.Scenario,
		"steps":    steps,
	}
}

func snapshotValue(v any) any {
	switch val := plain(v).(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		for i, e := range val {
			val[i] = snapshotValue(e)
		}
		return val
	case map[string]any:
		for k, e := range val {
			val[k] = snapshotValue(e)
		}
		return val
	case nil, string, int64, bool:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Snapshot returns the canonical JSON snapshot of a result: every step's
// statement and outcome.
func (r *Result) Snapshot() ([]byte, error) {
	return ir.MarshalCanonical(r.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := result.Snapshot()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)

	return nil
}
