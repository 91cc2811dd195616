package schema

import (
	"strconv"
	"strings"

	"lambdaguard/internal/apierrors"
)

// Parse builds a descriptor from the string form
//
//	type[:option,option,...]
//
// where type is one of any, string, number, integer, boolean, object, array,
// email or uuid, and options are required, optional, trim, empty, min=N,
// max=N, valid=a|b|c, default=V, tag=T and pattern=RE. pattern consumes the
// rest of the expression, so it must come last.
//
//	schema.Parse("number:required,min=0")
//	schema.Parse("string:trim,pattern=^[a-z,]+$")
func Parse(expr string) (*Descriptor, error) {
	expr = strings.TrimSpace(expr)
	typeName, options, _ := strings.Cut(expr, ":")

	d, err := descriptorFor(strings.ToLower(strings.TrimSpace(typeName)))
	if err != nil {
		return nil, err
	}

	for options != "" {
		var option string
		if strings.HasPrefix(strings.TrimSpace(options), "pattern=") {
			option, options = strings.TrimSpace(options), ""
		} else {
			option, options, _ = strings.Cut(options, ",")
		}
		if err := applyOption(d, strings.TrimSpace(option)); err != nil {
			return nil, apierrors.Configuration("schema %q: %v", expr, err)
		}
	}
	return d, nil
}

// ParseFields parses one expression per field.
func ParseFields(exprs map[string]string) (Fields, error) {
	fields := make(Fields, len(exprs))
	for name, expr := range exprs {
		d, err := Parse(expr)
		if err != nil {
			return nil, err
		}
		fields[name] = d
	}
	return fields, nil
}

func descriptorFor(typeName string) (*Descriptor, error) {
	switch typeName {
	case "", "any":
		return Any(), nil
	case "string":
		return String(), nil
	case "number":
		return Number(), nil
	case "integer", "int":
		return Integer(), nil
	case "boolean", "bool":
		return Boolean(), nil
	case "object":
		return Object(nil), nil
	case "array":
		return Array(nil), nil
	case "email":
		return Email(), nil
	case "uuid":
		return UUID(), nil
	}
	return nil, apierrors.Configuration("unknown schema type %q", typeName)
}

func applyOption(d *Descriptor, option string) error {
	if option == "" {
		return nil
	}
	name, value, hasValue := strings.Cut(option, "=")

	switch name {
	case "required":
		d.Required()
	case "optional":
		d.Optional()
	case "trim":
		d.Trim()
	case "empty":
		d.Empty()
	case "min", "max":
		if !hasValue {
			return errOption(option)
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errOption(option)
		}
		if name == "min" {
			d.Min(n)
		} else {
			d.Max(n)
		}
	case "valid":
		if !hasValue {
			return errOption(option)
		}
		for _, raw := range strings.Split(value, "|") {
			d.Valid(literal(d.Type, raw))
		}
	case "default":
		if !hasValue {
			return errOption(option)
		}
		d.Default(literal(d.Type, value))
	case "tag":
		if !hasValue {
			return errOption(option)
		}
		d.Tag(value)
	case "pattern":
		if !hasValue {
			return errOption(option)
		}
		d.Pattern(value)
	default:
		return errOption(option)
	}
	return nil
}

// literal converts a DSL value to the descriptor's type when it can.
func literal(t Type, raw string) any {
	switch t {
	case TypeNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case TypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

func errOption(option string) error {
	return apierrors.Configuration("invalid option %q", option)
}
