package blocks

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenLogoBridge/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/block-binding-v1.json
var blockBindingSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("block-binding-v1.json",
		strings.NewReader(blockBindingSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("block-binding-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateBinding checks a raw JSON binding document.
func (v *Validator) ValidateBinding(data []byte) error {
	var binding interface{}
	if err := json.Unmarshal(data, &binding); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", types.ErrConfiguration, err)
	}

	if err := v.schema.Validate(binding); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", types.ErrConfiguration, err)
	}

	return nil
}

func (v *Validator) ValidateSpec(spec Spec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal binding: %w", err)
	}

	return v.ValidateBinding(data)
}
