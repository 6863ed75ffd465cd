package harness

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/roach88/qdsl/internal/logging"
	"github.com/roach88/qdsl/internal/mapper"
	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/querysql"
	"github.com/roach88/qdsl/internal/schema"
	"github.com/roach88/qdsl/internal/store"
)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	log    logrus.FieldLogger
	runIDs store.RunIDGenerator
}

// WithLogger sets the logger handed to the scenario's store. Runs are
// silent by default.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *runConfig) { c.log = l }
}

// WithRunIDGenerator sets the source of the run id reported in the
// result.
func WithRunIDGenerator(g store.RunIDGenerator) Option {
	return func(c *runConfig) { c.runIDs = g }
}

// harness executes the steps of one scenario.
type harness struct {
	scenario *Scenario
	registry *schema.Registry
	store    *store.Store
	compiler *querysql.Compiler
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory SQLite database:
//  1. Build the schema registry and create its tables
//  2. Insert the seed rows
//  3. Run the steps in order, checking each step's expectations
//
// Failed expectations are recorded in the result. The error return is
// reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{log: logging.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg, err := scenario.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	storeOpts := []store.Option{store.WithLogger(cfg.log.WithField("scenario", scenario.Name))}
	if cfg.runIDs != nil {
		storeOpts = append(storeOpts, store.WithRunIDGenerator(cfg.runIDs))
	}
	st, err := store.Open(ctx, store.Config{Dialect: querysql.SQLite, DSN: store.MemoryDSN}, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := scenario.Prepare(ctx, st, reg); err != nil {
		return nil, err
	}

	h := &harness{
		scenario: scenario,
		registry: reg,
		store:    st,
		compiler: querysql.NewCompiler(st.Dialect()),
	}

	result := NewResult(scenario.Name)
	result.RunID = st.RunID()
	for i := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := &scenario.Steps[i]
		sr, stepErr := h.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		for _, aerr := range checkStep(step, sr, stepErr) {
			result.AddError(aerr.Error())
		}
	}

	return result, nil
}

// runStep executes one step. The returned error is the step's own
// failure, already recorded in the result's Error code.
func (h *harness) runStep(ctx context.Context, step *Step) (StepResult, error) {
	sr := StepResult{Name: step.Name}
	params := h.scenario.params(step)

	var err error
	if step.Mutation != nil {
		sr.Kind = "mutation"
		err = h.mutate(ctx, step, params, &sr)
	} else {
		sr.Kind = "query"
		sr.Fetch = step.fetchMode()
		err = h.query(ctx, step, params, &sr)
	}
	if err != nil {
		sr.Error = errorCode(err)
	}
	return sr, err
}

func (h *harness) mutate(ctx context.Context, step *Step, params map[string]any, sr *StepResult) error {
	m, err := querydoc.CompileMutation(h.registry, step.Mutation, params)
	if err != nil {
		return err
	}
	stmt, err := h.compiler.Mutation(m)
	if err != nil {
		return err
	}
	sr.SQL, sr.Args = stmt.SQL, stmt.Args

	n, err := h.store.Execute(ctx, m)
	if err != nil {
		return err
	}
	sr.Affected = &n
	return nil
}

func (h *harness) query(ctx context.Context, step *Step, params map[string]any, sr *StepResult) error {
	d, err := querydoc.CompileQuery(h.registry, step.Query, params)
	if err != nil {
		return err
	}

	var stmt querysql.Statement
	switch sr.Fetch {
	case FetchCount:
		stmt, err = h.compiler.Count(d)
	case FetchFirst:
		stmt, err = h.compiler.Select(d.First())
	default:
		stmt, err = h.compiler.Select(d)
	}
	if err != nil {
		return err
	}
	sr.SQL, sr.Args = stmt.SQL, stmt.Args

	switch sr.Fetch {
	case FetchCount:
		n, err := h.store.FetchCount(ctx, d)
		if err != nil {
			return err
		}
		sr.Count = &n
		return nil
	case FetchResults:
		res, err := h.store.FetchResults(ctx, d)
		if err != nil {
			return err
		}
		sr.Total = &res.Total
		sr.setRows(res.Items)
		return nil
	case FetchOne, FetchFirst:
		v, err := h.fetchSingle(ctx, sr.Fetch, d)
		if err != nil {
			return err
		}
		var rows []any
		if v != nil {
			rows = []any{v}
		}
		sr.setRows(rows)
		return nil
	}

	rows, err := h.store.FetchAll(ctx, d)
	if err != nil {
		return err
	}
	sr.setRows(rows)
	return nil
}

func (h *harness) fetchSingle(ctx context.Context, mode string, d *queryir.QueryDescriptor) (any, error) {
	if mode == FetchOne {
		return h.store.FetchOne(ctx, d)
	}
	return h.store.FetchFirst(ctx, d)
}

func (sr *StepResult) setRows(rows []any) {
	sr.Rows = make([]any, len(rows))
	for i, r := range rows {
		sr.Rows[i] = plain(mapper.Export(r))
	}
	n := int64(len(rows))
	sr.Count = &n
}
