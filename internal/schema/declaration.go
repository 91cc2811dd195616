package schema

import (
	"strings"

	"lambdaguard/internal/apierrors"
)

// Event sections a declaration can validate.
const (
	SectionHeaders = "headers"
	SectionQuery   = "queryStringParameters"
	SectionParams  = "pathParameters"
	SectionBody    = "body"
)

var sectionOrder = []string{SectionHeaders, SectionQuery, SectionParams, SectionBody}

func knownSection(name string) bool {
	for _, s := range sectionOrder {
		if s == name {
			return true
		}
	}
	return false
}

// Section is one validated part of the event.
type Section struct {
	Name   string
	Fields Fields

	// AllowUnknown skips the undeclared-field check. Headers allow unknown
	// fields by default since the gateway adds its own.
	AllowUnknown bool
}

// Declaration lists the sections validated for one handler, in declaration
// order. It is read-only once compiled.
type Declaration struct {
	sections []Section
}

// NewDeclaration creates an empty declaration.
func NewDeclaration() *Declaration {
	return &Declaration{}
}

// Section declares fields for the named event section, replacing any earlier
// declaration for it.
func (d *Declaration) Section(name string, fields Fields) *Declaration {
	section := Section{
		Name:         name,
		Fields:       fields,
		AllowUnknown: name == SectionHeaders,
	}
	for i := range d.sections {
		if d.sections[i].Name == name {
			d.sections[i] = section
			return d
		}
	}
	d.sections = append(d.sections, section)
	return d
}

func (d *Declaration) Headers(fields Fields) *Declaration { return d.Section(SectionHeaders, fields) }
func (d *Declaration) Query(fields Fields) *Declaration   { return d.Section(SectionQuery, fields) }
func (d *Declaration) Params(fields Fields) *Declaration  { return d.Section(SectionParams, fields) }
func (d *Declaration) Body(fields Fields) *Declaration    { return d.Section(SectionBody, fields) }

// Strict makes the named section reject undeclared fields.
func (d *Declaration) Strict(name string) *Declaration {
	for i := range d.sections {
		if d.sections[i].Name == name {
			d.sections[i].AllowUnknown = false
		}
	}
	return d
}

// Sections returns the declared sections in order.
func (d *Declaration) Sections() []Section {
	return append([]Section(nil), d.sections...)
}

// Compile validates every descriptor. Header field names are lower-cased
// since header lookup is case-insensitive.
func (d *Declaration) Compile() error {
	for i, section := range d.sections {
		if !knownSection(section.Name) {
			return apierrors.Configuration("unknown schema section %q", section.Name)
		}
		if section.Name == SectionHeaders {
			folded := make(Fields, len(section.Fields))
			for name, desc := range section.Fields {
				folded[strings.ToLower(name)] = desc
			}
			d.sections[i].Fields = folded
		}
		if err := d.sections[i].Fields.compile(""); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates each declared section of event in order and writes the
// coerced values back. The first failing section stops validation.
func (d *Declaration) Validate(event map[string]any, ignored IgnoreSet) error {
	if d == nil {
		return nil
	}
	for _, section := range d.sections {
		if err := section.validate(event, ignored); err != nil {
			return err
		}
	}
	return nil
}

func (s Section) validate(event map[string]any, ignored IgnoreSet) error {
	values := map[string]any{}
	if raw := event[s.Name]; raw != nil {
		m, ok := toMap(raw)
		if !ok {
			return failure(s.Name, "must be of type object")
		}
		if m != nil {
			values = m
		}
	}

	if s.Name != SectionHeaders {
		if err := validateFields("", values, s.Fields, ignored, !s.AllowUnknown); err != nil {
			return err
		}
		event[s.Name] = values
		return nil
	}

	original := make(map[string]string, len(values))
	folded := make(map[string]any, len(values))
	for k, v := range values {
		lower := strings.ToLower(k)
		original[lower] = k
		folded[lower] = v
	}
	foldedIgnored := make(IgnoreSet, len(ignored))
	for name := range ignored {
		foldedIgnored.Add(strings.ToLower(name))
	}

	if err := validateFields("", folded, s.Fields, foldedIgnored, !s.AllowUnknown); err != nil {
		return err
	}

	headers := make(map[string]any, len(folded))
	for lower, v := range folded {
		key, ok := original[lower]
		if !ok {
			key = lower
		}
		headers[key] = v
	}
	event[s.Name] = headers
	return nil
}
