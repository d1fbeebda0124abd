package models

import (
	"strconv"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed/requests"
)

// CoerceParam converts user-typed text for one parameter into the type the
// card's endpoint expects. Published schema fields follow the type of their
// declared default, dynamic "number" params parse numerically, and anything
// unrecognized stays a string. String-typed enums like duration keep their
// quoting on the wire.
func CoerceParam(card Card, name, raw string) interface{} {
	if card.Dynamic {
		if spec, ok := card.Params[name]; ok {
			switch spec.Type {
			case "number", "array-int":
				return coerceNumeric(raw)
			}
		}
		return raw
	}

	schema, ok := requests.Lookup(card.Model)
	if !ok {
		return raw
	}
	for _, f := range schema.Fields {
		if f.Name != name {
			continue
		}
		switch f.Default.(type) {
		case bool:
			if b, err := strconv.ParseBool(raw); err == nil {
				return b
			}
		case int, int64, float64:
			return coerceNumeric(raw)
		}
		return raw
	}
	return raw
}

func coerceNumeric(raw string) interface{} {
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
