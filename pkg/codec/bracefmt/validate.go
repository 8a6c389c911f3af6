package bracefmt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/erx-dienst/erx-core/pkg/codec"
)

// Validator checks brace-format payloads against a compiled JSON Schema
// before they reach the streaming parser — defense-in-depth against
// malformed input, the way the teacher's core/pkg/firewall and
// core/pkg/interfaces/agui validate a payload's shape before acting on
// it.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaJSON (a JSON Schema document) into a
// reusable Validator.
func NewValidator(schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("erx-core.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("bracefmt: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("erx-core.json")
	if err != nil {
		return nil, fmt.Errorf("bracefmt: compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks data against the compiled schema.
func (v *Validator) Validate(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("bracefmt: invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("bracefmt: schema validation: %w", err)
	}
	return nil
}

// ParseValidated validates data against v, then parses it into the
// neutral event stream. Rejects malformed documents before the streaming
// parser ever sees them.
func (v *Validator) ParseValidated(data []byte) ([]codec.Item, error) {
	if err := v.Validate(data); err != nil {
		return nil, err
	}
	return Parse(data)
}
