package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/qdsl/internal/config"
	"github.com/roach88/qdsl/internal/schema"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	DDL     bool
	Dialect string
}

// SchemaResult is the JSON payload of the schema command.
type SchemaResult struct {
	Entities []*schema.Entity `json:"entities"`
	DDL      []string         `json:"ddl,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema [schema-file]",
		Short: "Load entity metadata and print it",
		Long: `Load entity metadata from a YAML or CUE file, validate it and print
the entities with their fields and columns.

Without an argument the schema.path setting is used.

Examples:
  qdsl schema ./schema/members.yaml
  qdsl schema ./schema/members.cue --ddl --dialect postgres
  qdsl schema --config qdsl.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DDL, "ddl", false, "also print CREATE TABLE statements")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect for --ddl (sqlite|postgres|mysql)")

	return cmd
}

func runSchema(opts *SchemaOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig(map[string]any{"database.dialect": opts.Dialect})
	if err != nil {
		return formatter.Fail(ErrCodeConfig, "invalid configuration", err)
	}

	reg, err := loadRegistry(firstArg(args), cfg)
	if err != nil {
		return formatter.Fail(ErrCodeSchema, "failed to load schema", err)
	}
	formatter.VerboseLog("Loaded %d entities", len(reg.Entities()))

	result := SchemaResult{Entities: reg.Entities()}
	if opts.DDL {
		c := cfg.Compiler()
		for _, e := range result.Entities {
			result.DDL = append(result.DDL, c.CreateTable(reg, e))
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputSchemaText(cmd, result)
}

func outputSchemaText(cmd *cobra.Command, result SchemaResult) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, e := range result.Entities {
		fmt.Fprintf(w, "%s (table %s)\n", e.Name, e.Table)
		for _, f := range e.Fields {
			typ := string(f.Type)
			if f.IsRelation() {
				typ += " -> " + f.Target
			}
			var flags []string
			if f.PrimaryKey {
				flags = append(flags, "primary key")
			}
			if f.Nullable {
				flags = append(flags, "nullable")
			}
			fmt.Fprintf(w, "  %s\t%s\tcolumn %s\t%s\n", f.Name, typ, f.Column, strings.Join(flags, ", "))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, stmt := range result.DDL {
		fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", stmt)
	}
	return nil
}

// loadRegistry loads the schema at path, falling back to the schema.path
// setting.
func loadRegistry(path string, cfg *config.Config) (*schema.Registry, error) {
	if path == "" {
		path = cfg.Schema.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no schema file given and schema.path is not set")
	}
	return schema.LoadFile(path)
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
