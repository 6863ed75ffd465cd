package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/querysql"
	"github.com/roach88/qdsl/internal/schema"
)

// DocumentOptions are the flags shared by commands that compile a query
// document.
type DocumentOptions struct {
	Schema  string
	Params  []string // key=value
	Dialect string
}

func (o *DocumentOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Schema, "schema", "", "schema file (defaults to the schema.path setting)")
	cmd.Flags().StringArrayVarP(&o.Params, "param", "p", nil, "document parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&o.Dialect, "dialect", "", "SQL dialect (sqlite|postgres|mysql)")
}

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	DocumentOptions
	Placeholders string
	Count        bool
}

// RenderResult is the JSON payload of the render command.
type RenderResult struct {
	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind"` // query, count or mutation
	Dialect     string `json:"dialect"`
	SQL         string `json:"sql"`
	Args        []any  `json:"args"`
	Fingerprint string `json:"fingerprint"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Compile a query document and print its SQL",
		Long: `Compile a query or mutation document against the schema and print the
parameterized SQL with its arguments. Nothing is executed.

Examples:
  qdsl render ./queries/team-average.yaml --schema ./schema/members.yaml
  qdsl render ./queries/adults.yaml -p minAge=18 --dialect postgres
  qdsl render ./queries/adults.yaml --count --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.Placeholders, "placeholders", "", "placeholder format (question|dollar)")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "render the count query instead")

	return cmd
}

func runRender(opts *RenderOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig(map[string]any{
		"database.dialect":    opts.Dialect,
		"render.placeholders": opts.Placeholders,
	})
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	reg, err := loadRegistry(opts.Schema, cfg)
	if err != nil {
		return formatter.Fail(ErrCodeSchema, "failed to load schema", err)
	}

	compiled, err := compileDocument(reg, path, opts.Params)
	if err != nil {
		return formatter.Fail(classify(err), "failed to compile document", err)
	}

	result, err := render(cfg.Compiler(), compiled, opts.Count)
	if err != nil {
		return formatter.Fail(ErrCodeQuery, "failed to render document", err)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	if result.Name != "" {
		fmt.Fprintf(w, "-- %s (%s)\n", result.Name, result.Kind)
	}
	fmt.Fprintln(w, result.SQL)
	if len(result.Args) > 0 {
		fmt.Fprintf(w, "-- args: %v\n", result.Args)
	}
	formatter.VerboseLog("fingerprint %s", result.Fingerprint)
	return nil
}

func render(c *querysql.Compiler, compiled *querydoc.Compiled, count bool) (RenderResult, error) {
	result := RenderResult{Name: compiled.Name, Dialect: string(c.Dialect())}

	var (
		stmt querysql.Statement
		err  error
	)
	switch {
	case compiled.Mutation != nil:
		if count {
			return result, fmt.Errorf("--count does not apply to a mutation")
		}
		result.Kind = "mutation"
		result.Fingerprint = compiled.Mutation.Fingerprint()
		stmt, err = c.Mutation(compiled.Mutation)
	case count:
		result.Kind = "count"
		result.Fingerprint = compiled.Query.Fingerprint()
		stmt, err = c.Count(compiled.Query)
	default:
		result.Kind = "query"
		result.Fingerprint = compiled.Query.Fingerprint()
		stmt, err = c.Select(compiled.Query)
	}
	if err != nil {
		return result, err
	}

	result.SQL = stmt.SQL
	result.Args = stmt.Args
	if result.Args == nil {
		result.Args = []any{}
	}
	return result, nil
}

// compileDocument loads the document at path and compiles it with the
// given key=value parameters.
func compileDocument(reg *schema.Registry, path string, params []string) (*querydoc.Compiled, error) {
	doc, err := querydoc.LoadFile(path)
	if err != nil {
		return nil, err
	}
	values, err := parseParams(params)
	if err != nil {
		return nil, err
	}
	return querydoc.Compile(reg, doc, values)
}

// parseParams parses key=value pairs. Values are YAML scalars, so
// "age=20" is an integer and "name=20" can be forced to a string with
// quotes: name='20'.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: want key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", pair, err)
		}
		if _, isMap := v.(map[string]any); isMap {
			return nil, fmt.Errorf("invalid parameter %q: value must be a scalar or a list", pair)
		}
		out[key] = v
	}
	return out, nil
}
