// Package schema validates and coerces request sections against declared
// field descriptors.
//
// Every accepted declaration form (builder calls, the string DSL, plain maps
// and JSONC documents) produces the same *Descriptor. The validator only ever
// sees descriptors.
package schema

import (
	"fmt"
	"regexp"

	"lambdaguard/internal/apierrors"
)

// Type is the value type a descriptor accepts.
type Type string

const (
	TypeAny     Type = "any"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
)

func (t Type) valid() bool {
	switch t {
	case TypeAny, TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// CoerceFunc converts a raw value before type checks run.
type CoerceFunc func(value any) (any, error)

// Fields maps field names to their descriptors.
type Fields map[string]*Descriptor

// Descriptor is the normalized description of one field.
//
// MinValue and MaxValue bound string length, array length or numeric value
// depending on Type. ValidatorTag holds a go-playground/validator tag such as
// "email" or "uuid".
type Descriptor struct {
	Type         Type
	IsRequired   bool
	TrimSpace    bool
	AllowEmpty   bool
	MinValue     *float64
	MaxValue     *float64
	PatternExpr  string
	Enum         []any
	DefaultValue any
	ValidatorTag string
	Coerce       CoerceFunc
	Fields       Fields
	Items        *Descriptor

	pattern *regexp.Regexp
}

// Compile checks the descriptor tree and prepares patterns. It must run
// before the descriptor is shared between invocations.
func (d *Descriptor) Compile() error {
	return d.compile("value")
}

func (d *Descriptor) compile(path string) error {
	if d == nil {
		return apierrors.Configuration("schema for %q is nil", path)
	}
	if d.Type == "" {
		d.Type = TypeAny
	}
	if !d.Type.valid() {
		return apierrors.Configuration("schema for %q has unknown type %q", path, d.Type)
	}
	if d.MinValue != nil && d.MaxValue != nil && *d.MinValue > *d.MaxValue {
		return apierrors.Configuration("schema for %q has min greater than max", path)
	}
	if d.PatternExpr != "" && d.pattern == nil {
		re, err := regexp.Compile(d.PatternExpr)
		if err != nil {
			return apierrors.Configuration("schema for %q has invalid pattern: %v", path, err)
		}
		d.pattern = re
	}
	if d.ValidatorTag != "" {
		if err := checkTag(d.ValidatorTag); err != nil {
			return apierrors.Configuration("schema for %q has invalid tag %q: %v", path, d.ValidatorTag, err)
		}
	}
	if d.Items != nil {
		if d.Type != TypeArray {
			return apierrors.Configuration("schema for %q declares items but is not an array", path)
		}
		if err := d.Items.compile(path + "[]"); err != nil {
			return err
		}
	}
	if len(d.Fields) > 0 {
		if d.Type != TypeObject {
			return apierrors.Configuration("schema for %q declares fields but is not an object", path)
		}
		if err := d.Fields.compile(path + "."); err != nil {
			return err
		}
	}
	return nil
}

// Compile compiles every descriptor in f.
func (f Fields) Compile() error {
	return f.compile("")
}

func (f Fields) compile(prefix string) error {
	for _, name := range sortedKeys(f) {
		if err := f[name].compile(prefix + name); err != nil {
			return err
		}
	}
	return nil
}

// checkTag reports tags the validator does not know. validator.Var panics on
// those, so the probe runs behind recover.
func checkTag(tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_ = validate.Var("", tag)
	return nil
}
