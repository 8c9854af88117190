package blocks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BindingsFile is the on-disk list of block bindings.
type BindingsFile struct {
	Blocks []Spec `yaml:"blocks"`
}

// LoadBindings reads a YAML bindings file.
func LoadBindings(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bindings %s: %w", path, err)
	}

	return ParseBindings(data)
}

func ParseBindings(data []byte) ([]Spec, error) {
	var file BindingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bindings: %w", err)
	}

	return file.Blocks, nil
}
