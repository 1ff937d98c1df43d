package toolserver

import (
	"fmt"
)

// Schema describes an adapter's input parameters for validation.
type Schema map[string]SchemaField

// SchemaField constrains a single parameter.
type SchemaField struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	MaxLength   int      `json:"maxLength,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
}

// ParameterNames returns the declared parameter names. The policy
// engine uses these for whitelist validation.
func (s Schema) ParameterNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}

// Validate checks arguments against the schema: required fields,
// types, enums, and bounds.
func (s Schema) Validate(args Args) error {
	for name, field := range s {
		val, exists := args[name]
		if field.Required && !exists {
			return fmt.Errorf("missing required field: %s", name)
		}
		if !exists {
			continue
		}
		if err := validateField(name, val, field); err != nil {
			return err
		}
	}
	for name := range args {
		if _, declared := s[name]; !declared {
			return fmt.Errorf("unknown field: %s", name)
		}
	}
	return nil
}

func validateField(name string, val any, field SchemaField) error {
	switch field.Type {
	case "string":
		str, ok := val.(string)
		if !ok {
			return fmt.Errorf("field %s: expected string, got %T", name, val)
		}
		if field.MaxLength > 0 && len(str) > field.MaxLength {
			return fmt.Errorf("field %s: string too long (max %d)", name, field.MaxLength)
		}
		if len(field.Enum) > 0 {
			found := false
			for _, allowed := range field.Enum {
				if allowed == str {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("field %s: value not in allowed list", name)
			}
		}

	case "number", "integer":
		var num float64
		switch v := val.(type) {
		case float64:
			num = v
		case int:
			num = float64(v)
		case int64:
			num = float64(v)
		default:
			return fmt.Errorf("field %s: expected number, got %T", name, val)
		}
		if field.Minimum != nil && num < *field.Minimum {
			return fmt.Errorf("field %s: value %v below minimum %v", name, num, *field.Minimum)
		}
		if field.Maximum != nil && num > *field.Maximum {
			return fmt.Errorf("field %s: value %v above maximum %v", name, num, *field.Maximum)
		}

	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("field %s: expected boolean, got %T", name, val)
		}

	case "object":
		if _, ok := val.(map[string]any); !ok {
			return fmt.Errorf("field %s: expected object, got %T", name, val)
		}

	case "array":
		if _, ok := val.([]any); !ok {
			return fmt.Errorf("field %s: expected array, got %T", name, val)
		}
	}
	return nil
}
