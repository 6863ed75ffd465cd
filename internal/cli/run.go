package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/qdsl/internal/config"
	"github.com/roach88/qdsl/internal/harness"
	"github.com/roach88/qdsl/internal/mapper"
	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/schema"
	"github.com/roach88/qdsl/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DocumentOptions
	DSN          string
	Fetch        string
	Seed         string // scenario file whose schema and seed rows are loaded first
	CreateSchema bool
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind"`
	Fetch    string `json:"fetch,omitempty"`
	Rows     []any  `json:"rows,omitempty"`
	Count    *int64 `json:"count,omitempty"`
	Total    *int64 `json:"total,omitempty"`
	Affected *int64 `json:"affected,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Execute a query document against the configured database",
		Long: `Compile a query or mutation document and execute it against the
configured database. Queries print their rows; mutations print the number
of affected rows.

With --seed, the schema and seed rows of a scenario file are loaded first,
which makes the default in-memory SQLite database useful for trying
documents out.

Examples:
  qdsl run ./queries/team-average.yaml --seed ./scenarios/members.yaml
  qdsl run ./queries/adults.yaml -p minAge=18 --fetch count --config qdsl.yaml
  qdsl run ./queries/age-all.yaml --dialect postgres --dsn "postgres://localhost/app?sslmode=disable"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocument(opts, args[0], cmd)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "database DSN (defaults to the database.dsn setting)")
	cmd.Flags().StringVar(&opts.Fetch, "fetch", harness.FetchAll, "fetch mode for queries (all|one|first|count|results)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "scenario file providing schema and seed rows")
	cmd.Flags().BoolVar(&opts.CreateSchema, "create-schema", false, "create missing tables before running")

	return cmd
}

func runDocument(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig(map[string]any{
		"database.dialect": opts.Dialect,
		"database.dsn":     opts.DSN,
	})
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}
	log, err := opts.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	var scenario *harness.Scenario
	if opts.Seed != "" {
		if scenario, err = harness.LoadScenario(opts.Seed); err != nil {
			return formatter.Fail(ErrCodeNotFound, "failed to load seed scenario", err)
		}
	}

	reg, err := runRegistry(opts, scenario, cfg)
	if err != nil {
		return formatter.Fail(ErrCodeSchema, "failed to load schema", err)
	}

	compiled, err := compileDocument(reg, path, opts.Params)
	if err != nil {
		return formatter.Fail(classify(err), "failed to compile document", err)
	}
	if compiled.Mutation == nil && !validFetch(opts.Fetch) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid fetch mode %q", opts.Fetch))
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig).Info("received signal, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()

	st, err := store.Open(ctx, store.Config{
		Dialect:      cfg.Dialect(),
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		QueryLog:     cfg.Database.QueryLog,
	}, store.WithLogger(log))
	if err != nil {
		return formatter.Fail(ErrCodeDatabase, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.WithError(closeErr).Error("error closing database")
		}
	}()

	switch {
	case scenario != nil:
		err = scenario.Prepare(ctx, st, reg)
	case opts.CreateSchema:
		err = st.CreateSchema(ctx, reg)
	}
	if err != nil {
		return formatter.Fail(ErrCodeDatabase, "failed to prepare database", err)
	}

	result, err := execute(ctx, st, compiled, opts.Fetch)
	if err != nil {
		code := ErrCodeDatabase
		if queryir.Code(err) != "" || errors.Is(err, store.ErrNonUniqueResult) {
			code = ErrCodeQuery
		}
		return formatter.Fail(code, "failed to execute document", err)
	}
	log.WithFields(logrus.Fields{"document": path, "kind": result.Kind}).Debug("document executed")

	if opts.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, RunID: st.RunID()})
	}
	outputRunText(cmd, result)
	return nil
}

// runRegistry picks the schema: the --schema flag, then the seed
// scenario's schema, then the schema.path setting.
func runRegistry(opts *RunOptions, scenario *harness.Scenario, cfg *config.Config) (*schema.Registry, error) {
	if opts.Schema == "" && scenario != nil {
		return scenario.Registry()
	}
	return loadRegistry(opts.Schema, cfg)
}

func validFetch(mode string) bool {
	switch mode {
	case harness.FetchAll, harness.FetchOne, harness.FetchFirst, harness.FetchCount, harness.FetchResults:
		return true
	}
	return false
}

func execute(ctx context.Context, st *store.Store, compiled *querydoc.Compiled, fetch string) (RunResult, error) {
	result := RunResult{Name: compiled.Name}

	if m := compiled.Mutation; m != nil {
		result.Kind = "mutation"
		n, err := st.Execute(ctx, m)
		if err != nil {
			return result, err
		}
		result.Affected = &n
		return result, nil
	}

	result.Kind = "query"
	result.Fetch = fetch
	d := compiled.Query

	var rows []any
	switch fetch {
	case harness.FetchCount:
		n, err := st.FetchCount(ctx, d)
		if err != nil {
			return result, err
		}
		result.Count = &n
		return result, nil
	case harness.FetchResults:
		res, err := st.FetchResults(ctx, d)
		if err != nil {
			return result, err
		}
		result.Total = &res.Total
		rows = res.Items
	case harness.FetchOne, harness.FetchFirst:
		fetchSingle := st.FetchOne
		if fetch == harness.FetchFirst {
			fetchSingle = st.FetchFirst
		}
		v, err := fetchSingle(ctx, d)
		if err != nil {
			return result, err
		}
		if v != nil {
			rows = []any{v}
		}
	default:
		all, err := st.FetchAll(ctx, d)
		if err != nil {
			return result, err
		}
		rows = all
	}

	result.Rows = make([]any, len(rows))
	for i, r := range rows {
		result.Rows[i] = mapper.Export(r)
	}
	n := int64(len(rows))
	result.Count = &n
	return result, nil
}

func outputRunText(cmd *cobra.Command, result RunResult) {
	w := cmd.OutOrStdout()
	if result.Kind == "mutation" {
		fmt.Fprintf(w, "%d row(s) affected\n", *result.Affected)
		return
	}
	if result.Fetch == harness.FetchCount {
		fmt.Fprintln(w, *result.Count)
		return
	}
	for _, row := range result.Rows {
		fmt.Fprintln(w, formatRow(row))
	}
	if result.Total != nil {
		fmt.Fprintf(w, "(%d of %d row(s))\n", *result.Count, *result.Total)
		return
	}
	fmt.Fprintf(w, "(%d row(s))\n", *result.Count)
}

// formatRow prints tuples as "a | b", records as "k=v" pairs sorted by
// key and NULL as NULL.
func formatRow(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = formatRow(e)
		}
		return strings.Join(parts, " | ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + formatRow(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}
