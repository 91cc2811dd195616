package schema

// Builder form. Each constructor returns a fresh descriptor and each method
// modifies and returns its receiver, so declarations read as chains:
//
//	schema.Fields{
//		"name": schema.String().Trim().Required(),
//		"age":  schema.Number().Min(0).Required(),
//	}

func newDescriptor(t Type) *Descriptor {
	return &Descriptor{Type: t}
}

func String() *Descriptor  { return newDescriptor(TypeString) }
func Number() *Descriptor  { return newDescriptor(TypeNumber) }
func Integer() *Descriptor { return newDescriptor(TypeInteger) }
func Boolean() *Descriptor { return newDescriptor(TypeBoolean) }
func Any() *Descriptor     { return newDescriptor(TypeAny) }

// Object accepts a map. With fields the nested keys are validated strictly.
func Object(fields Fields) *Descriptor {
	d := newDescriptor(TypeObject)
	d.Fields = fields
	return d
}

// Array accepts a slice. items, when not nil, validates every element.
func Array(items *Descriptor) *Descriptor {
	d := newDescriptor(TypeArray)
	d.Items = items
	return d
}

// Email is a string that must be a valid email address.
func Email() *Descriptor { return String().Tag("email") }

// UUID is a string that must be a valid UUID.
func UUID() *Descriptor { return String().Tag("uuid") }

func (d *Descriptor) Required() *Descriptor {
	d.IsRequired = true
	return d
}

func (d *Descriptor) Optional() *Descriptor {
	d.IsRequired = false
	return d
}

func (d *Descriptor) Trim() *Descriptor {
	d.TrimSpace = true
	return d
}

// Empty allows the empty string.
func (d *Descriptor) Empty() *Descriptor {
	d.AllowEmpty = true
	return d
}

func (d *Descriptor) Min(n float64) *Descriptor {
	d.MinValue = &n
	return d
}

func (d *Descriptor) Max(n float64) *Descriptor {
	d.MaxValue = &n
	return d
}

func (d *Descriptor) Pattern(expr string) *Descriptor {
	d.PatternExpr = expr
	d.pattern = nil
	return d
}

// Valid restricts the value to one of values.
func (d *Descriptor) Valid(values ...any) *Descriptor {
	d.Enum = append(d.Enum, values...)
	return d
}

func (d *Descriptor) Default(value any) *Descriptor {
	d.DefaultValue = value
	return d
}

// Tag adds a go-playground/validator tag, e.g. "url" or "datetime=2006-01-02".
func (d *Descriptor) Tag(tag string) *Descriptor {
	if d.ValidatorTag == "" {
		d.ValidatorTag = tag
	} else {
		d.ValidatorTag += "," + tag
	}
	return d
}

func (d *Descriptor) Custom(fn CoerceFunc) *Descriptor {
	d.Coerce = fn
	return d
}
