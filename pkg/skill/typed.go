package skill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// RegisterTyped registers a skill whose handler takes a typed argument struct.
// The argument map from the executor's reply is decoded with mapstructure, and
// the catalogue schema is generated from the struct's tags.
//
// Example:
//
//	type mathArgs struct {
//	    Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression"`
//	}
//	RegisterTyped(reg, "evaluate_math", "Evaluate arithmetic.", func(ctx context.Context, args mathArgs) (string, error) { ... })
func RegisterTyped[A any](r *Registry, name, description string, fn func(ctx context.Context, args A) (string, error)) error {
	schema, err := generateSchema[A]()
	if err != nil {
		return fmt.Errorf("failed to generate schema for skill '%s': %w", name, err)
	}

	handler := func(ctx context.Context, raw map[string]any) (string, error) {
		var args A
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &args,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return "", err
		}
		if err := decoder.Decode(raw); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		return fn(ctx, args)
	}

	return r.RegisterSkill(&Skill{
		Name:        name,
		Description: description,
		Handler:     handler,
		Schema:      schema,
	})
}

// generateSchema builds a JSON-schema map from a Go struct using json and
// jsonschema tags.
func generateSchema[A any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(A))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
