package nodes

import (
	"fmt"
	"strconv"
	"strings"
)

// ConvertParameterValue coerces a host-supplied value to the declared
// parameter type. Hosts hand over whatever their widget produced; dynamic
// model cards declare what the API wants.
//
// Types: "string" (default), "number", "array-str" (comma-splittable),
// "array-int" (numeric array with per-element string fallback).
func ConvertParameterValue(value interface{}, paramType string) interface{} {
	switch paramType {
	case "array-str":
		return toStringArray(value)
	case "array-int":
		return toNumberArray(value)
	case "number":
		return toNumber(value)
	default:
		return stringify(value)
	}
}

func toStringArray(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, stringify(item))
		}
		return items
	case string:
		return splitCommaList(v)
	default:
		return []string{stringify(value)}
	}
}

// toNumberArray keeps numeric elements as numbers and falls back to the
// string form for anything unparseable, mirroring the loose contracts of
// dynamic models.
func toNumberArray(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		items := make([]interface{}, 0, len(v))
		for _, item := range v {
			items = append(items, numberOrString(item))
		}
		return items
	case string:
		items := make([]interface{}, 0)
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if f, err := strconv.ParseFloat(part, 64); err == nil {
				items = append(items, f)
			} else {
				items = append(items, part)
			}
		}
		return items
	default:
		return []interface{}{numberOrString(value)}
	}
}

func toNumber(value interface{}) interface{} {
	switch v := value.(type) {
	case int, int64, float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return value
	default:
		return value
	}
}

func numberOrString(value interface{}) interface{} {
	switch v := value.(type) {
	case int, int64, float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	default:
		return stringify(value)
	}
}

func splitCommaList(s string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	return fmt.Sprintf("%v", value)
}
