package patterns

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is a closed comparator over dot-path fields of an
// aggregated loop result, e.g. "accuracy > 0.9" or "status == done".
// A bare field name tests presence.
type Condition struct {
	Field    string
	Operator string
	Value    string
}

var operators = []string{"<=", ">=", "==", "!=", "<", ">"}

// ParseCondition parses the loop condition DSL.
func ParseCondition(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty condition")
	}
	for _, op := range operators {
		if idx := strings.Index(expr, op); idx > 0 {
			field := strings.TrimSpace(expr[:idx])
			value := strings.TrimSpace(expr[idx+len(op):])
			if field == "" || value == "" {
				return nil, fmt.Errorf("malformed condition %q", expr)
			}
			return &Condition{Field: field, Operator: op, Value: value}, nil
		}
	}
	if strings.ContainsAny(expr, " \t") {
		return nil, fmt.Errorf("unrecognized condition %q", expr)
	}
	// Bare field: presence test.
	return &Condition{Field: expr, Operator: "present"}, nil
}

// Evaluate tests the condition against the aggregated result. A missing
// field or unparseable value is not-met (false) with ok=false so the
// caller can record a warning.
func (c *Condition) Evaluate(result map[string]any) (met, ok bool) {
	val, found := lookupPath(result, c.Field)
	if c.Operator == "present" {
		return found, true
	}
	if !found {
		return false, false
	}

	if lhs, isNum := toFloat(val); isNum {
		rhs, err := strconv.ParseFloat(strings.Trim(c.Value, `"'`), 64)
		if err != nil {
			return false, false
		}
		return compareFloats(lhs, rhs, c.Operator), true
	}

	lhs := fmt.Sprint(val)
	rhs := strings.Trim(c.Value, `"'`)
	switch c.Operator {
	case "==":
		return lhs == rhs, true
	case "!=":
		return lhs != rhs, true
	case "<":
		return lhs < rhs, true
	case "<=":
		return lhs <= rhs, true
	case ">":
		return lhs > rhs, true
	case ">=":
		return lhs >= rhs, true
	}
	return false, false
}

func compareFloats(lhs, rhs float64, op string) bool {
	switch op {
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	}
	return false
}

// lookupPath resolves a dot-path through nested maps.
func lookupPath(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
