package harness

// StepResult records what one step did.
type StepResult struct {
	Name string `json:"name"`

	// Kind is "query" or "mutation".
	Kind string `json:"kind"`

	// Fetch is the fetch mode of a query step.
	Fetch string `json:"fetch,omitempty"`

	// SQL and Args are the statement rendered for the store's dialect.
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`

	// Rows are the exported rows of a query step.
	Rows []any `json:"rows,omitempty"`

	Count    *int64 `json:"count,omitempty"`
	Total    *int64 `json:"total,omitempty"`
	Affected *int64 `json:"affected,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	Scenario string `json:"scenario"`

	// RunID correlates the scenario's log lines. It is not part of the
	// golden snapshot.
	RunID string `json:"run_id"`

	// Pass indicates overall test success.
	// True if every step met its expectations.
	Pass bool `json:"pass"`

	Steps []StepResult `json:"steps"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Steps:    []StepResult{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
