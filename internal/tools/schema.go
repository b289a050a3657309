package tools

import (
	"fmt"
	"math"
	"strings"
)

// ValidateParams checks args against a JSON-Schema subset: type, enum,
// minimum/maximum, minLength/maxLength, required, nested properties and
// array items. Extra keys are accepted. Returns one message per
// violation; paths use dotted notation and [i] for array indices.
func ValidateParams(args map[string]any, schema map[string]any) []string {
	if schema == nil {
		return nil
	}
	if t, _ := schema["type"].(string); t != "" && t != "object" {
		return []string{"params: schema top level must be an object"}
	}
	var errs []string
	validateValue(args, schema, "params", &errs)
	return errs
}

func validateValue(value any, schema map[string]any, path string, errs *[]string) {
	typ, _ := schema["type"].(string)
	if typ != "" && !checkType(value, typ) {
		*errs = append(*errs, fmt.Sprintf("%s: expected %s, got %s", path, typ, typeName(value)))
		return
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		matched := false
		for _, allowed := range enum {
			if valueEqual(value, allowed) {
				matched = true
				break
			}
		}
		if !matched {
			*errs = append(*errs, fmt.Sprintf("%s: value must be one of %s", path, enumList(enum)))
			return
		}
	}

	switch v := value.(type) {
	case string:
		if min, ok := numberField(schema, "minLength"); ok && len(v) < int(min) {
			*errs = append(*errs, fmt.Sprintf("%s: length must be >= %d", path, int(min)))
		}
		if max, ok := numberField(schema, "maxLength"); ok && len(v) > int(max) {
			*errs = append(*errs, fmt.Sprintf("%s: length must be <= %d", path, int(max)))
		}
	case float64:
		if min, ok := numberField(schema, "minimum"); ok && v < min {
			*errs = append(*errs, fmt.Sprintf("%s: value must be >= %v", path, min))
		}
		if max, ok := numberField(schema, "maximum"); ok && v > max {
			*errs = append(*errs, fmt.Sprintf("%s: value must be <= %v", path, max))
		}
	case map[string]any:
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				name, _ := r.(string)
				if _, present := v[name]; name != "" && !present {
					*errs = append(*errs, fmt.Sprintf("%s: missing required field '%s'", path, name))
				}
			}
		}
		if required, ok := schema["required"].([]string); ok {
			for _, name := range required {
				if _, present := v[name]; !present {
					*errs = append(*errs, fmt.Sprintf("%s: missing required field '%s'", path, name))
				}
			}
		}
		if props, ok := schema["properties"].(map[string]any); ok {
			for name, sub := range props {
				subSchema, ok := sub.(map[string]any)
				if !ok {
					continue
				}
				if child, present := v[name]; present {
					validateValue(child, subSchema, path+"."+name, errs)
				}
			}
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, item := range v {
				validateValue(item, items, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	}
}

func checkType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch n := value.(type) {
		case float64:
			return n == math.Trunc(n)
		case int:
			return true
		}
		return false
	case "number":
		switch value.(type) {
		case float64, int:
			return true
		}
		return false
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

func valueEqual(a, b any) bool {
	// JSON decoding yields float64 for all numbers; normalize ints from
	// hand-built schemas so enum comparison is type-insensitive.
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func numberField(schema map[string]any, key string) (float64, bool) {
	v, ok := schema[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func enumList(enum []any) string {
	parts := make([]string, len(enum))
	for i, v := range enum {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
