package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/qdsl/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden snapshots
	Filter string // glob over scenario file names, without extension
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated" or "" without a golden file
	Errors []string `json:"errors,omitempty"`
}

// TestResult is the JSON payload of the test command.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against in-memory databases",
		Long: `Run every scenario file under a directory. Each scenario gets a fresh
in-memory SQLite database, its seed rows and its steps in order.

When <dir>/golden/<file>.golden exists next to a scenario, the scenario's
snapshot (rendered SQL and outcome of every step) must match it too.
--update rewrites the snapshots of passing scenarios.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario failed
  2 - the command itself failed (missing directory, bad filter, etc.)

Examples:
  qdsl test ./scenarios
  qdsl test ./scenarios --filter "team-*"
  qdsl test ./scenarios --update
  qdsl test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden snapshots")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name matches this glob")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	cfg, err := opts.loadConfig(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	log, err := opts.logger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	text := opts.Format != "json"
	w := cmd.OutOrStdout()
	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		sr := runScenario(ctx, file, opts.Update, log)
		if text {
			printScenario(w, sr)
		}
		result.add(sr)
	}

	if !text {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles lists the .yaml and .yml files under dir in lexical
// order. golden directories are skipped.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			// Match only fails on a bad pattern, rejected above.
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads and runs one scenario file, then checks its golden
// snapshot.
func runScenario(ctx context.Context, file string, update bool, log logrus.FieldLogger) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file)}
	failed := func(format string, args ...any) ScenarioResult {
		sr.Errors = append([]string{fmt.Sprintf(format, args...)}, sr.Errors...)
		return sr
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed("failed to load scenario: %v", err)
	}
	sr.Name = scenario.Name

	result, err := harness.Run(ctx, scenario, harness.WithLogger(log))
	if err != nil {
		return failed("execution failed: %v", err)
	}
	sr.Steps = len(result.Steps)
	if !result.Pass {
		sr.Errors = result.Errors
		return failed("%d expectation(s) failed", len(result.Errors))
	}

	if sr.Golden, err = checkGolden(result, goldenFilePath(file), update); err != nil {
		return failed("%v", err)
	}
	sr.Pass = true
	return sr
}

var errGoldenMismatch = errors.New("snapshot does not match golden file (run with --update to regenerate)")

// checkGolden compares the result's snapshot with the golden file at
// path, or rewrites the file when update is set. It returns "" when there
// is no golden file to compare with.
func checkGolden(result *harness.Result, path string, update bool) (string, error) {
	snapshot, err := result.Snapshot()
	if err != nil {
		return "", fmt.Errorf("failed to build snapshot: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return "updated", nil
	}

	golden, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("failed to read golden file: %w", err)
	case !bytes.Equal(golden, snapshot):
		return "", errGoldenMismatch
	}
	return "matched", nil
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func printScenario(w io.Writer, sr ScenarioResult) {
	if !sr.Pass {
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimSpace(e), "\n", "\n  "))
		}
		return
	}
	switch sr.Golden {
	case "updated":
		fmt.Fprintf(w, "✓ %s (%d steps, golden updated)\n", sr.Name, sr.Steps)
	case "matched":
		fmt.Fprintf(w, "✓ %s (%d steps, golden matched)\n", sr.Name, sr.Steps)
	default:
		fmt.Fprintf(w, "✓ %s (%d steps)\n", sr.Name, sr.Steps)
	}
}

func failedScenarios(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	exitErr := failedScenarios(result)
	if exitErr != nil {
		resp.Status = "error"
		resp.Error = &CLIError{Code: ErrCodeScenario, Message: exitErr.Error()}
	}

	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if err := formatter.encode(resp); err != nil {
		return err
	}
	return exitErr
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	fmt.Fprintf(w, "\nScenarios: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	return failedScenarios(result)
}
