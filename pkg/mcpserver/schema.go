package mcpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rhuss/evileye/pkg/registry"
)

// ErrMissingArgument is returned for a required field without a value.
var ErrMissingArgument = errors.New("missing required argument")

// InputSchema returns the JSON schema object describing fields.
func InputSchema(fields []registry.Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for _, f := range fields {
		p := typeSchema(f.Type)
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
		if f.Required() {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func typeSchema(t string) map[string]any {
	if isList(t) {
		return map[string]any{"type": "array", "items": typeSchema(elemType(t))}
	}
	switch baseType(t) {
	case "Int":
		return map[string]any{"type": "integer"}
	case "Float":
		return map[string]any{"type": "number"}
	case "Boolean":
		return map[string]any{"type": "boolean"}
	case "String", "ID":
		return map[string]any{"type": "string"}
	default:
		// Input objects, enums and custom scalars are passed through.
		return map[string]any{}
	}
}

// Arguments decodes raw tool arguments for fields. Numbers are converted
// to int for Int fields and float64 otherwise, the way GraphQL arguments
// arrive. Unknown keys are dropped.
func Arguments(fields []registry.Field, raw json.RawMessage) (map[string]any, error) {
	in := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&in); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := in[f.Name]
		if !ok || v == nil {
			if f.Required() {
				return nil, fmt.Errorf("%w %q", ErrMissingArgument, f.Name)
			}
			continue
		}
		cv, err := convert(v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

func convert(v any, t string) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if baseType(t) == "Int" {
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("%s is not an Int", val)
			}
			return int(n), nil
		}
		return val.Float64()
	case []any:
		if !isList(t) {
			return val, nil
		}
		et := elemType(t)
		out := make([]any, len(val))
		for i, e := range val {
			ce, err := convert(e, et)
			if err != nil {
				return nil, err
			}
			out[i] = ce
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			ce, err := convert(e, "")
			if err != nil {
				return nil, err
			}
			out[k] = ce
		}
		return out, nil
	default:
		return v, nil
	}
}
