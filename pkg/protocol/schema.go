package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Provider-declared schemas are untrusted input. ValidateDescriptor runs at
// discovery time, ValidateArguments again before every dispatch.

// maxSchemaBytes bounds provider-declared schema size
const maxSchemaBytes = 64 * 1024

// ValidateDescriptor checks a discovered capability descriptor: the name must
// be non-empty and the declared input schema, if any, must itself be a
// well-formed JSON Schema within size bounds.
func ValidateDescriptor(desc CapabilityDescriptor) error {
	if strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("capability has empty name")
	}
	if desc.Kind == "" {
		return fmt.Errorf("capability %q has empty kind", desc.Name)
	}
	if len(desc.InputSchema) == 0 {
		return nil
	}
	if len(desc.InputSchema) > maxSchemaBytes {
		return fmt.Errorf("capability %q declares oversized schema (%d bytes)", desc.Name, len(desc.InputSchema))
	}

	if _, err := CompileSchema(desc.InputSchema); err != nil {
		return fmt.Errorf("capability %q declares invalid schema: %w", desc.Name, err)
	}
	return nil
}

// CompileSchema compiles a provider-declared JSON Schema
func CompileSchema(raw json.RawMessage) (*gojsonschema.Schema, error) {
	loader := gojsonschema.NewBytesLoader(raw)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// ValidateArguments validates invocation arguments against the capability's
// declared input schema. A capability without a schema accepts any object.
func ValidateArguments(desc CapabilityDescriptor, args map[string]interface{}) error {
	if len(desc.InputSchema) == 0 {
		return nil
	}

	schema, err := CompileSchema(desc.InputSchema)
	if err != nil {
		return fmt.Errorf("schema for %q no longer compiles: %w", desc.Name, err)
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("argument validation failed for %q: %w", desc.Name, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("arguments rejected for %q: %s", desc.Name, strings.Join(issues, "; "))
	}
	return nil
}
