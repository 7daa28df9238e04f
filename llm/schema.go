package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects the JSON schema of T as a plain map, inlined without
// $ref indirection so it can be embedded in a prompt.
func SchemaFor[T any]() (map[string]interface{}, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var v T
	raw, err := json.Marshal(r.Reflect(&v))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}
