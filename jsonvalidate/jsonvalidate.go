// Package jsonvalidate validates LLM completion text against a JSON Schema
// before it is unmarshaled into a typed struct, so a model response that is
// syntactically valid JSON but semantically wrong (missing fields, wrong
// types) is rejected the same way a parse failure is. Grounded in
// registry/service.go's validatePayloadJSONAgainstSchema.
package jsonvalidate

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator holds one compiled JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles a JSON Schema document. name is an arbitrary
// resource identifier used only in compiler error messages.
func Compile(name, schemaJSON string) (*Validator, error) {
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("jsonvalidate: unmarshal schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("jsonvalidate: add resource %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("jsonvalidate: compile %s: %w", name, err)
	}
	return &Validator{schema: schema}, nil
}

// MustCompile is Compile, panicking on error. Intended for package-level
// schema literals that are known-good at compile time.
func MustCompile(name, schemaJSON string) *Validator {
	v, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate parses raw as JSON and checks it against the compiled schema.
func (v *Validator) Validate(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("jsonvalidate: invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("jsonvalidate: schema violation: %w", err)
	}
	return nil
}
