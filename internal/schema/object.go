package schema

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/jsonc"

	"lambdaguard/internal/apierrors"
)

// objectForm is the map representation of a descriptor.
type objectForm struct {
	Type     string         `mapstructure:"type"`
	Required bool           `mapstructure:"required"`
	Trim     bool           `mapstructure:"trim"`
	Empty    bool           `mapstructure:"empty"`
	Min      *float64       `mapstructure:"min"`
	Max      *float64       `mapstructure:"max"`
	Pattern  string         `mapstructure:"pattern"`
	Valid    []any          `mapstructure:"valid"`
	Default  any            `mapstructure:"default"`
	Tag      string         `mapstructure:"tag"`
	Fields   map[string]any `mapstructure:"fields"`
	Items    any            `mapstructure:"items"`
}

// FromMap builds fields from their map form. Each value is either a DSL
// string accepted by Parse or a map such as
//
//	{"type": "string", "required": true, "max": 64}
//
// Nested objects declare "fields" and arrays declare "items" the same way.
func FromMap(m map[string]any) (Fields, error) {
	fields := make(Fields, len(m))
	for _, name := range sortedKeys(m) {
		d, err := descriptorFromValue(name, m[name])
		if err != nil {
			return nil, err
		}
		fields[name] = d
	}
	return fields, nil
}

func descriptorFromValue(name string, value any) (*Descriptor, error) {
	switch v := value.(type) {
	case string:
		return Parse(v)
	case map[string]any:
		return descriptorFromMap(name, v)
	case *Descriptor:
		return v, nil
	}
	return nil, apierrors.Configuration("schema for %q must be a string or an object", name)
}

func descriptorFromMap(name string, m map[string]any) (*Descriptor, error) {
	var form objectForm
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &form,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(m); err != nil {
		return nil, apierrors.Configuration("schema for %q: %v", name, err)
	}

	d, err := descriptorFor(form.Type)
	if err != nil {
		return nil, err
	}
	d.IsRequired = form.Required
	d.TrimSpace = form.Trim
	d.AllowEmpty = form.Empty
	d.MinValue = form.Min
	d.MaxValue = form.Max
	if form.Pattern != "" {
		d.Pattern(form.Pattern)
	}
	d.Enum = append(d.Enum, form.Valid...)
	d.DefaultValue = form.Default
	if form.Tag != "" {
		d.Tag(form.Tag)
	}

	if form.Fields != nil {
		fields, err := FromMap(form.Fields)
		if err != nil {
			return nil, err
		}
		d.Fields = fields
	}
	if form.Items != nil {
		items, err := descriptorFromValue(name+"[]", form.Items)
		if err != nil {
			return nil, err
		}
		d.Items = items
	}
	return d, nil
}

// ParseJSONC builds a compiled declaration from a JSON document that may
// carry comments and trailing commas. Top-level keys name sections:
//
//	{
//	  // credentials come from the authorizer
//	  "body": {
//	    "name": "string:trim,required",
//	    "age":  {"type": "number", "min": 0},
//	  },
//	}
func ParseJSONC(data []byte) (*Declaration, error) {
	var doc map[string]map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, apierrors.Configuration("invalid schema document: %v", err)
	}

	decl := NewDeclaration()
	for _, section := range sectionOrder {
		m, ok := doc[section]
		if !ok {
			continue
		}
		fields, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		decl.Section(section, fields)
		delete(doc, section)
	}
	for name := range doc {
		return nil, apierrors.Configuration("unknown schema section %q", name)
	}

	if err := decl.Compile(); err != nil {
		return nil, err
	}
	return decl, nil
}
