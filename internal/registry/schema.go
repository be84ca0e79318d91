package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type FieldKind string

const (
	KindString     FieldKind = "string"
	KindNumber     FieldKind = "number"
	KindInteger    FieldKind = "integer"
	KindBoolean    FieldKind = "boolean"
	KindUUID       FieldKind = "uuid"
	KindDate       FieldKind = "date"
	KindDateTime   FieldKind = "datetime"
	KindStringList FieldKind = "string_list"
)

// Field is one payload property. Enum restricts string values; Positive
// requires numbers strictly greater than zero; Default fills a missing
// optional field after validation.
type Field struct {
	Name     string    `yaml:"name"`
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required,omitempty"`
	Positive bool      `yaml:"positive,omitempty"`
	Enum     []string  `yaml:"enum,omitempty"`
	Default  any       `yaml:"default,omitempty"`
}

var kindSchemas = map[FieldKind]func() map[string]any{
	KindString:  func() map[string]any { return map[string]any{"type": "string"} },
	KindNumber:  func() map[string]any { return map[string]any{"type": "number"} },
	KindInteger: func() map[string]any { return map[string]any{"type": "integer"} },
	KindBoolean: func() map[string]any { return map[string]any{"type": "boolean"} },
	KindUUID: func() map[string]any {
		return map[string]any{"type": "string", "format": "uuid"}
	},
	KindDate: func() map[string]any {
		return map[string]any{"type": "string", "format": "date"}
	},
	KindDateTime: func() map[string]any {
		return map[string]any{"type": "string", "format": "date-time"}
	},
	KindStringList: func() map[string]any {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	},
}

// JSONSchema renders the payload descriptor as a draft 2020-12 document.
// Unknown properties are allowed here and stripped by the validator.
func (d *Definition) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Fields))
	required := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		p := kindSchemas[f.Kind]()
		if len(f.Enum) > 0 {
			enum := make([]any, len(f.Enum))
			for i, v := range f.Enum {
				enum[i] = v
			}
			p["enum"] = enum
		}
		if f.Positive {
			p["exclusiveMinimum"] = 0
		}
		if f.Kind == KindString && f.Required {
			p["minLength"] = 1
		}
		props[f.Name] = p
		if f.Required {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func compileSchema(def *Definition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := fmt.Sprintf("https://dealtrail.schemas.local/events/%s.schema.json", def.Type)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	return c.Compile(url)
}
