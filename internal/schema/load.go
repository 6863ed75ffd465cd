package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads metadata from path. Files ending in .cue are compiled as
// CUE; everything else is parsed as YAML.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}

	var reg *Registry
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		reg, err = LoadCUE(data, path)
	} else {
		reg, err = LoadYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	return reg, nil
}
