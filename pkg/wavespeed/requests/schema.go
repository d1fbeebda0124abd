// Package requests declares the endpoint schemas accepted by the WaveSpeed
// API and builds validated JSON payloads from loosely-typed values. Each
// endpoint is a declarative descriptor interpreted by one generic builder;
// there is no per-endpoint code.
package requests

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/wavespeedai/wavebot-go/pkg/wavespeed"
)

var validate = validator.New()

// Field describes one parameter of an endpoint schema. Rule is a validator
// tag expression applied to non-empty values ("gte=0,lte=1", "oneof=5 10",
// "max=2000"). The declaration order of fields is the documented parameter
// order; it has no wire-level meaning.
type Field struct {
	Name     string
	Required bool
	Default  interface{}
	Rule     string
	Doc      string
}

// Schema is one endpoint's parameter set.
type Schema struct {
	Name   string
	Title  string
	Path   string
	Fields []Field
}

// Build produces the JSON payload for the given values. Missing or empty
// required fields and rule violations yield a ValidationError before any
// network I/O. Absent optional fields take their declared defaults; empty
// values (nil, "", empty slice or map) are dropped so the service applies
// its own defaults. false and 0 are real values and are kept.
func (s *Schema) Build(values map[string]interface{}) (map[string]interface{}, error) {
	payload := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := values[f.Name]
		if !ok || isEmpty(v) {
			if f.Required {
				return nil, &wavespeed.ValidationError{Field: f.Name, Reason: "required field is missing"}
			}
			v = f.Default
		}
		if isEmpty(v) {
			continue
		}
		if f.Rule != "" {
			if err := validate.Var(v, f.Rule); err != nil {
				return nil, &wavespeed.ValidationError{
					Field:  f.Name,
					Reason: fmt.Sprintf("value %v violates %q", v, f.Rule),
				}
			}
		}
		payload[f.Name] = v
	}
	return payload, nil
}

// Bind pairs the schema with user values as a submittable request.
func (s *Schema) Bind(values map[string]interface{}) *Request {
	return &Request{schema: s, values: values}
}

// Request is a schema bound to values; it implements wavespeed.Request.
type Request struct {
	schema *Schema
	values map[string]interface{}
}

func (r *Request) Path() string {
	return r.schema.Path
}

func (r *Request) Payload() (map[string]interface{}, error) {
	return r.schema.Build(r.values)
}

// Schema returns the descriptor this request was bound from.
func (r *Request) Schema() *Schema {
	return r.schema
}

func isEmpty(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	case []interface{}:
		return len(s) == 0
	case []string:
		return len(s) == 0
	case map[string]interface{}:
		return len(s) == 0
	}
	return false
}
