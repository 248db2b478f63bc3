// Package roles implements the four role specializations over the
// conversational agent: Planner, Executor, Reviewer, Coordinator. Each role
// fixes a reply schema, embeds it into its system prompt, and parses the
// model's replies against it.
package roles

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// schemaJSON renders the JSON schema of a reply struct for embedding into a
// system prompt, so the model sees exactly the shape it must produce.
func schemaJSON[T any]() string {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             false,
	}

	schema := reflector.Reflect(new(T))
	schema.Version = ""
	schema.ID = ""

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Reply structs are fixed at compile time; this cannot happen for them.
		return "{}"
	}
	return string(data)
}

// mustJSON renders a value for inclusion in a prompt.
func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
