package ai

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema from a Go type for structured replies.
// The schema is inlined (no $ref indirection) so it can be handed to the
// completions API as-is.
func SchemaFor(v any) (map[string]any, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}
