package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/schema"
	"github.com/roach88/qdsl/internal/store"
)

// Scenario is one end-to-end check: a schema, seed rows and an ordered
// list of steps run against a fresh database.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of a YAML or CUE metadata file. Relative paths
	// are resolved against the scenario file's directory.
	Schema string `yaml:"schema,omitempty"`

	// Entities declares the schema inline. Exactly one of Schema and
	// Entities is set.
	Entities []schema.Entity `yaml:"entities,omitempty"`

	// Seed lists rows inserted before the first step, in order.
	Seed []SeedStep `yaml:"seed,omitempty"`

	// Params are defaults shared by every step.
	Params map[string]any `yaml:"params,omitempty"`

	Steps []Step `yaml:"steps"`
}

// SeedStep inserts rows into one entity's table.
type SeedStep struct {
	Entity string           `yaml:"entity"`
	Rows   []map[string]any `yaml:"rows"`
}

// Step runs one query or mutation and checks its outcome.
type Step struct {
	Name string `yaml:"name"`

	// Fetch selects how a query is executed. Mutations take none.
	Fetch string `yaml:"fetch,omitempty"`

	// Params override the scenario's params for this step.
	Params map[string]any `yaml:"params,omitempty"`

	Query    *querydoc.Query    `yaml:"query,omitempty"`
	Mutation *querydoc.Mutation `yaml:"mutation,omitempty"`

	// Document is the path of a query document file, used instead of an
	// inline query or mutation. Its params act as defaults under Params.
	Document string `yaml:"document,omitempty"`

	// Expect is checked against the step's outcome. A step without one
	// only has to succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Fetch modes.
const (
	FetchAll     = "all"
	FetchOne     = "one"
	FetchFirst   = "first"
	FetchCount   = "count"
	FetchResults = "results"
)

var fetchModes = map[string]bool{
	FetchAll:     true,
	FetchOne:     true,
	FetchFirst:   true,
	FetchCount:   true,
	FetchResults: true,
}

// Expect lists the checks for one step. Unset fields are not checked.
type Expect struct {
	// Count is the number of rows returned, or the count itself for the
	// count fetch mode.
	Count *int64 `yaml:"count,omitempty"`

	// Total is the unpaged total of the results fetch mode.
	Total *int64 `yaml:"total,omitempty"`

	// Rows are the exported rows in order. Tuples are lists and entities
	// are maps. The one and first fetch modes produce zero or one row.
	Rows []any `yaml:"rows,omitempty"`

	// Affected is the row count of a mutation.
	Affected *int64 `yaml:"affected,omitempty"`

	// Error is the expected error code, e.g. OPERAND_TYPE or
	// NON_UNIQUE_RESULT.
	Error string `yaml:"error,omitempty"`
}

// fetchMode returns the step's fetch mode, defaulting to FetchAll.
func (s *Step) fetchMode() string {
	if s.Fetch == "" {
		return FetchAll
	}
	return s.Fetch
}

// LoadScenario reads and parses a scenario YAML file, resolving relative
// paths against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema and document paths relative to basePath.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Schema = resolve(basePath, scenario.Schema)
	for i := range scenario.Steps {
		scenario.Steps[i].Document = resolve(basePath, scenario.Steps[i].Document)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := loadDocuments(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file
// name. Subdirectories are not searched.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func resolve(basePath, p string) string {
	if p == "" || filepath.IsAbs(p) || basePath == "" {
		return p
	}
	return filepath.Join(basePath, p)
}

// loadDocuments replaces document references with the documents' query
// or mutation.
func loadDocuments(s *Scenario) error {
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Document == "" {
			continue
		}
		doc, err := querydoc.LoadFile(step.Document)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		step.Query, step.Mutation = doc.Query, doc.Mutation
		step.Params = doc.MergeParams(step.Params)
	}
	return nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch {
	case s.Schema == "" && len(s.Entities) == 0:
		return fmt.Errorf("schema or entities is required")
	case s.Schema != "" && len(s.Entities) > 0:
		return fmt.Errorf("schema and entities are mutually exclusive")
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", s.Schema)
		}
	}

	for i, seed := range s.Seed {
		if seed.Entity == "" {
			return fmt.Errorf("seed[%d]: entity is required", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
		sources := 0
		for _, set := range []bool{step.Query != nil, step.Mutation != nil, step.Document != ""} {
			if set {
				sources++
			}
		}
		if sources != 1 {
			return fmt.Errorf("steps[%d]: exactly one of query, mutation or document is required", i)
		}
		if !fetchModes[step.fetchMode()] {
			return fmt.Errorf("steps[%d]: unknown fetch mode %q", i, step.Fetch)
		}
		if step.Mutation != nil && step.Fetch != "" {
			return fmt.Errorf("steps[%d]: fetch does not apply to a mutation", i)
		}
		if step.Document != "" {
			if _, err := os.Stat(step.Document); os.IsNotExist(err) {
				return fmt.Errorf("steps[%d]: document not found: %s", i, step.Document)
			}
		}
	}

	return nil
}

// Registry builds the scenario's schema registry.
func (s *Scenario) Registry() (*schema.Registry, error) {
	if s.Schema != "" {
		return schema.LoadFile(s.Schema)
	}
	return schema.NewRegistry(s.Entities...)
}

// Prepare creates the tables of reg in st and inserts the seed rows.
func (s *Scenario) Prepare(ctx context.Context, st *store.Store, reg *schema.Registry) error {
	if err := st.CreateSchema(ctx, reg); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	for _, seed := range s.Seed {
		if err := st.Seed(ctx, reg, seed.Entity, seed.Rows); err != nil {
			return fmt.Errorf("failed to seed %s: %w", seed.Entity, err)
		}
	}
	return nil
}

// params merges the scenario defaults with the step's params.
func (s *Scenario) params(step *Step) map[string]any {
	out := make(map[string]any, len(s.Params)+len(step.Params))
	for k, v := range s.Params {
		out[k] = v
	}
	for k, v := range step.Params {
		out[k] = v
	}
	return out
}
