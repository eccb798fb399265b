package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestSchemaForInlinesStruct(t *testing.T) {
	type reply struct {
		Category string `json:"category" jsonschema:"enum=A,enum=B"`
		Subject  string `json:"subject"`
	}

	schema, err := SchemaFor(&reply{})
	if err != nil {
		t.Fatalf("SchemaFor() error = %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	if _, ok := schema["$schema"]; ok {
		t.Error("schema still carries $schema, want it stripped")
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema properties = %v, want inline map", schema["properties"])
	}
	if _, ok := props["category"]; !ok {
		t.Error("schema missing category property")
	}
}

func TestFilterSchemaIsValidJSON(t *testing.T) {
	var m map[string]any
	if err := json.Unmarshal([]byte(FilterSchema), &m); err != nil {
		t.Fatalf("FilterSchema does not parse: %v", err)
	}
	if _, ok := m["properties"]; !ok {
		t.Error("FilterSchema missing properties")
	}
}

func TestFilterSchemaMeetsStrictModeRules(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(FilterSchema), &schema); err != nil {
		t.Fatalf("FilterSchema does not parse: %v", err)
	}
	checkStrictObject(t, "$", schema)
}

// checkStrictObject walks a JSON schema and asserts the constraints the
// completions API enforces when Strict is set: every object schema must list
// all of its properties as required and forbid additional ones. A schema
// violating these is rejected with a 400 before any completion runs.
func checkStrictObject(t *testing.T, path string, schema map[string]any) {
	t.Helper()

	if props, ok := schema["properties"].(map[string]any); ok {
		required := make(map[string]bool)
		if req, ok := schema["required"].([]any); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					required[name] = true
				}
			}
		}
		if ap, ok := schema["additionalProperties"].(bool); !ok || ap {
			t.Errorf("%s: additionalProperties must be false", path)
		}
		for name, sub := range props {
			if !required[name] {
				t.Errorf("%s: property %q missing from required", path, name)
			}
			if m, ok := sub.(map[string]any); ok {
				checkStrictObject(t, path+"/"+name, m)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		checkStrictObject(t, path+"/items", items)
	}
	if anyOf, ok := schema["anyOf"].([]any); ok {
		for i, sub := range anyOf {
			if m, ok := sub.(map[string]any); ok {
				checkStrictObject(t, fmt.Sprintf("%s/anyOf[%d]", path, i), m)
			}
		}
	}
	if defs, ok := schema["$defs"].(map[string]any); ok {
		for name, sub := range defs {
			if m, ok := sub.(map[string]any); ok {
				checkStrictObject(t, path+"/$defs/"+name, m)
			}
		}
	}
}

func TestBuildReportPromptCarriesOutputs(t *testing.T) {
	prompt := BuildReportPrompt([]string{"first finding", "second finding"})
	if !strings.Contains(prompt, "first finding") || !strings.Contains(prompt, "second finding") {
		t.Errorf("report prompt missing analysis outputs:\n%s", prompt)
	}
}

func TestBuildFilterPromptNamesColumns(t *testing.T) {
	prompt := BuildFilterPrompt("hours for Alice", []string{"EmployeeName", "ActualTimeSpent"}, "data chunk")
	for _, want := range []string{"hours for Alice", "EmployeeName", "ActualTimeSpent", "data chunk"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("filter prompt missing %q", want)
		}
	}
}
