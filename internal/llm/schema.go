package llm

import "fmt"

// ValidateSchema performs a narrow, closed-shape validation of a structured
// response against the caller's schema map. Schema uses the small subset of
// JSON Schema the synthesis pipeline's structured calls actually need:
//
//	{"type": "object", "required": ["a","b"], "properties": {"a": {"type": "string"}, ...}}
//
// This is intentionally not a general JSON Schema implementation — see
// DESIGN.md for why no validation library from the example corpus was
// wired in for this narrow concern.
func ValidateSchema(schema map[string]any, data map[string]any) error {
	if schema == nil {
		return nil
	}
	if required, ok := schema["required"].([]string); ok {
		for _, key := range required {
			if _, present := data[key]; !present {
				return fmt.Errorf("missing required field %q", key)
			}
		}
	} else if requiredAny, ok := schema["required"].([]any); ok {
		for _, k := range requiredAny {
			key, _ := k.(string)
			if key == "" {
				continue
			}
			if _, present := data[key]; !present {
				return fmt.Errorf("missing required field %q", key)
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, propSchemaAny := range props {
		val, present := data[key]
		if !present {
			continue
		}
		propSchema, ok := propSchemaAny.(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !valueMatchesType(val, wantType) {
			return fmt.Errorf("field %q: want type %q, got %T", key, wantType, val)
		}
	}
	return nil
}

func valueMatchesType(val any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		switch val.(type) {
		case float64, float32, int, int64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
