package querydoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document holds exactly one query or one mutation.
type Document struct {
	// Name identifies the document in CLI and harness output.
	Name string `yaml:"name,omitempty"`

	// Params supplies default parameter values; callers may override them.
	Params map[string]any `yaml:"params,omitempty"`

	Query    *Query    `yaml:"query,omitempty"`
	Mutation *Mutation `yaml:"mutation,omitempty"`
}

// Query is the YAML form of a select query.
type Query struct {
	// From lists the sources as "Entity" or "Entity alias". Several
	// sources form a theta join.
	From []string `yaml:"from"`

	Joins []Join `yaml:"joins,omitempty"`

	// Select lists the projected expressions. Empty selects entities.
	Select []yaml.Node `yaml:"select,omitempty"`

	Where    yaml.Node   `yaml:"where,omitempty"`
	GroupBy  []yaml.Node `yaml:"group_by,omitempty"`
	Having   yaml.Node   `yaml:"having,omitempty"`
	OrderBy  []Order     `yaml:"order_by,omitempty"`
	Offset   *int64      `yaml:"offset,omitempty"`
	Limit    *int64      `yaml:"limit,omitempty"`
	Distinct bool        `yaml:"distinct,omitempty"`
}

// Join is one join clause. Relation joins name a relation field; joins
// without one need an On predicate.
type Join struct {
	// Kind is "inner" (the default) or "left".
	Kind string `yaml:"kind,omitempty"`

	// Relation is the relation field followed, e.g. "member.team".
	Relation string `yaml:"relation,omitempty"`

	// Target is "Entity" or "Entity alias".
	Target string `yaml:"target"`

	On    yaml.Node `yaml:"on,omitempty"`
	Fetch bool      `yaml:"fetch,omitempty"`
}

// Order is one sort key.
type Order struct {
	Expr  yaml.Node `yaml:"expr"`
	Dir   string    `yaml:"dir,omitempty"`   // asc (default) or desc
	Nulls string    `yaml:"nulls,omitempty"` // first, last or "" for the database default
}

// UnmarshalYAML accepts a bare expression as an ascending key.
func (o *Order) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		o.Expr = *n
		return nil
	}
	type plain Order
	return n.Decode((*plain)(o))
}

// Mutation is the YAML form of a bulk update or delete. Exactly one of
// Update and Delete is set.
type Mutation struct {
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`

	// Set maps field names of the target to values or expressions, in
	// order. A null value sets the field to NULL.
	Set yaml.Node `yaml:"set,omitempty"`

	Where yaml.Node `yaml:"where,omitempty"`
}

// Parse decodes a document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty document")
		}
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads and parses the document at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) validate() error {
	switch {
	case d.Query == nil && d.Mutation == nil:
		return fmt.Errorf("document needs a query or a mutation")
	case d.Query != nil && d.Mutation != nil:
		return fmt.Errorf("document has both a query and a mutation")
	}
	return nil
}

// MergeParams returns the document's parameters overridden by overrides.
func (d *Document) MergeParams(overrides map[string]any) map[string]any {
	out := make(map[string]any, len(d.Params)+len(overrides))
	for k, v := range d.Params {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
