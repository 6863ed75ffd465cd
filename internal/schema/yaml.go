package schema

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the YAML (and embedded) form of schema metadata.
type Document struct {
	Entities []Entity `yaml:"entities"`
}

// LoadYAML parses YAML metadata and builds a Registry.
func LoadYAML(data []byte) (*Registry, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return NewRegistry(doc.Entities...)
}
