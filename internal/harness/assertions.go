package harness

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/store"
)

// Error codes for failures that carry no queryir code.
const (
	CodeNonUniqueResult = "NON_UNIQUE_RESULT"
	CodeDocument        = "DOCUMENT"
	CodeExecution       = "EXECUTION"
)

// AssertionError is returned when a step does not meet an expectation.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Step     string // Step name
	Type     string // Checked property: error, count, total, rows or affected
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	SQL      string // Statement the step ran, if it got that far
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s: %s\n", e.Step, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.SQL != "" {
		fmt.Fprintf(&buf, "  SQL: %s\n", e.SQL)
	}

	return buf.String()
}

// errorCode classifies a step failure.
func errorCode(err error) string {
	if errors.Is(err, store.ErrNonUniqueResult) {
		return CodeNonUniqueResult
	}
	if code := queryir.Code(err); code != "" {
		return string(code)
	}
	var derr *querydoc.Error
	if errors.As(err, &derr) {
		return CodeDocument
	}
	return CodeExecution
}

// checkStep compares a step's outcome with its expectations.
func checkStep(step *Step, sr StepResult, stepErr error) []*AssertionError {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	fail := func(typ, expected, actual string) *AssertionError {
		return &AssertionError{Step: step.Name, Type: typ, Expected: expected, Actual: actual, SQL: sr.SQL}
	}

	switch {
	case stepErr != nil && exp.Error == "":
		return []*AssertionError{fail("error", "no error", stepErr.Error())}
	case stepErr != nil && exp.Error != sr.Error:
		return []*AssertionError{fail("error", exp.Error, fmt.Sprintf("%s (%v)", sr.Error, stepErr))}
	case stepErr != nil:
		return nil
	case exp.Error != "":
		return []*AssertionError{fail("error", exp.Error, "no error")}
	}

	var errs []*AssertionError
	if exp.Count != nil && !equalCount(exp.Count, sr.Count) {
		errs = append(errs, fail("count", fmt.Sprint(*exp.Count), formatCount(sr.Count)))
	}
	if exp.Total != nil && !equalCount(exp.Total, sr.Total) {
		errs = append(errs, fail("total", fmt.Sprint(*exp.Total), formatCount(sr.Total)))
	}
	if exp.Affected != nil && !equalCount(exp.Affected, sr.Affected) {
		errs = append(errs, fail("affected", fmt.Sprint(*exp.Affected), formatCount(sr.Affected)))
	}
	if exp.Rows != nil {
		if want := plain(exp.Rows); !reflect.DeepEqual(want, plain(sr.Rows)) {
			errs = append(errs, fail("rows", fmt.Sprint(want), fmt.Sprint(sr.Rows)))
		}
	}
	return errs
}

func equalCount(want, got *int64) bool {
	return got != nil && *want == *got
}

func formatCount(n *int64) string {
	if n == nil {
		return "none"
	}
	return fmt.Sprint(*n)
}

// plain normalizes a value for comparison: every integer becomes int64,
// floats with an integral value too, and nested lists and maps are
// normalized recursively. A nil list becomes an empty one.
func plain(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return plain(float64(val))
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = plain(e)
		}
		return out
	}
	return v
}
