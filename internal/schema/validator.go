package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"lambdaguard/internal/apierrors"
)

var validate = validator.New()

// IgnoreSet holds field names validation skips entirely.
type IgnoreSet map[string]struct{}

// NewIgnoreSet creates a set from names.
func NewIgnoreSet(names ...string) IgnoreSet {
	set := make(IgnoreSet, len(names))
	for _, name := range names {
		set.Add(name)
	}
	return set
}

// Add inserts name into the set.
func (s IgnoreSet) Add(name string) {
	if name != "" {
		s[name] = struct{}{}
	}
}

// Has reports whether name is ignored.
func (s IgnoreSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Validate checks values against fields and replaces each value with its
// coerced form. Declared fields are checked first, in name order, then any
// field that is neither declared nor ignored is rejected. The first
// violation is returned as a validation failure naming the field.
func Validate(values map[string]any, fields Fields, ignored IgnoreSet) error {
	return validateFields("", values, fields, ignored, true)
}

func validateFields(prefix string, values map[string]any, fields Fields, ignored IgnoreSet, strict bool) error {
	for _, name := range sortedKeys(fields) {
		if ignored.Has(name) {
			continue
		}
		d := fields[name]
		path := prefix + name

		value, present := values[name]
		if !present || value == nil {
			if d.DefaultValue != nil {
				values[name] = cloneValue(d.DefaultValue)
				continue
			}
			if d.IsRequired {
				return failure(path, "is required")
			}
			continue
		}

		coerced, err := d.validate(path, value)
		if err != nil {
			return err
		}
		values[name] = coerced
	}

	if !strict {
		return nil
	}
	for _, name := range sortedKeys(values) {
		if _, declared := fields[name]; declared || ignored.Has(name) {
			continue
		}
		return failure(prefix+name, "is not allowed")
	}
	return nil
}

func (d *Descriptor) validate(path string, value any) (any, error) {
	if d.Coerce != nil {
		converted, err := d.Coerce(value)
		if err != nil {
			return nil, failure(path, "failed custom validation because %s", err.Error())
		}
		value = converted
	}

	var err error
	switch d.Type {
	case TypeString:
		value, err = d.validateString(path, value)
	case TypeNumber, TypeInteger:
		value, err = d.validateNumber(path, value)
	case TypeBoolean:
		value, err = validateBoolean(path, value)
	case TypeObject:
		value, err = d.validateObject(path, value)
	case TypeArray:
		value, err = d.validateArray(path, value)
	}
	if err != nil {
		return nil, err
	}

	if len(d.Enum) > 0 && !oneOf(value, d.Enum) {
		return nil, failure(path, "must be one of %s", formatEnum(d.Enum))
	}

	if d.ValidatorTag != "" {
		if err := validate.Var(value, d.ValidatorTag); err != nil {
			return nil, failure(path, "must be a valid %s", tagName(err, d.ValidatorTag))
		}
	}
	return value, nil
}

func (d *Descriptor) validateString(path string, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, failure(path, "must be a string")
	}
	if d.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if d.AllowEmpty {
			return s, nil
		}
		return nil, failure(path, "is not allowed to be empty")
	}

	length := float64(utf8.RuneCountInString(s))
	if d.MinValue != nil && length < *d.MinValue {
		return nil, failure(path, "length must be at least %s characters long", formatNumber(*d.MinValue))
	}
	if d.MaxValue != nil && length > *d.MaxValue {
		return nil, failure(path, "length must be less than or equal to %s characters long", formatNumber(*d.MaxValue))
	}

	if re := d.compiledPattern(); re != nil && !re.MatchString(s) {
		return nil, failure(path, "with value %q fails to match the required pattern: /%s/", s, d.PatternExpr)
	}
	return s, nil
}

func (d *Descriptor) compiledPattern() *regexp.Regexp {
	if d.pattern != nil || d.PatternExpr == "" {
		return d.pattern
	}
	// uncompiled descriptor; Compile rejects bad patterns up front
	re, err := regexp.Compile(d.PatternExpr)
	if err != nil {
		return nil
	}
	return re
}

func (d *Descriptor) validateNumber(path string, value any) (any, error) {
	n, ok := toFloat(value)
	if !ok {
		return nil, failure(path, "must be a number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, failure(path, "must be a number")
	}

	if d.Type == TypeInteger && n != math.Trunc(n) {
		return nil, failure(path, "must be an integer")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if d.Type == TypeInteger && (n < math.MinInt64 || n >= math.MaxInt64) {
		return nil, failure(path, "must be a safe number")
	}
	if d.MinValue != nil && n < *d.MinValue {
		return nil, failure(path, "must be greater than or equal to %s", formatNumber(*d.MinValue))
	}
	if d.MaxValue != nil && n > *d.MaxValue {
		return nil, failure(path, "must be less than or equal to %s", formatNumber(*d.MaxValue))
	}

	if d.Type == TypeInteger {
		return int64(n), nil
	}
	return n, nil
}

func validateBoolean(path string, value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, failure(path, "must be a boolean")
}

func (d *Descriptor) validateObject(path string, value any) (any, error) {
	m, ok := toMap(value)
	if !ok {
		return nil, failure(path, "must be of type object")
	}
	if d.Fields != nil {
		if err := validateFields(path+".", m, d.Fields, nil, true); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (d *Descriptor) validateArray(path string, value any) (any, error) {
	items, ok := toSlice(value)
	if !ok {
		return nil, failure(path, "must be an array")
	}

	length := float64(len(items))
	if d.MinValue != nil && length < *d.MinValue {
		return nil, failure(path, "must contain at least %s items", formatNumber(*d.MinValue))
	}
	if d.MaxValue != nil && length > *d.MaxValue {
		return nil, failure(path, "must contain less than or equal to %s items", formatNumber(*d.MaxValue))
	}

	if d.Items != nil {
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				if d.Items.IsRequired {
					return nil, failure(itemPath, "must not be a sparse array item")
				}
				continue
			}
			coerced, err := d.Items.validate(itemPath, item)
			if err != nil {
				return nil, err
			}
			items[i] = coerced
		}
	}
	return items, nil
}

// cloneValue deep-copies maps and slices so a request never shares them
// with its descriptor.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	}
	return value
}

func failure(path, format string, args ...any) error {
	message := fmt.Sprintf(`"%s" `, path) + fmt.Sprintf(format, args...)
	return apierrors.Validation(path, message)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func toMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return m, true
	case string:
		s := strings.TrimSpace(v)
		if !strings.HasPrefix(s, "{") {
			return nil, false
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, true
	case string:
		s := strings.TrimSpace(v)
		if !strings.HasPrefix(s, "[") {
			return nil, false
		}
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, false
		}
		return items, true
	}
	return nil, false
}

func oneOf(value any, allowed []any) bool {
	for _, candidate := range allowed {
		if equalValues(value, candidate) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	fa, aNum := toNumeric(a)
	fb, bNum := toNumeric(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// toNumeric is toFloat without string parsing.
func toNumeric(value any) (float64, bool) {
	if _, ok := value.(string); ok {
		return 0, false
	}
	return toFloat(value)
}

func formatEnum(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// tagName returns the name of the validator tag that failed.
func tagName(err error, fallback string) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return errs[0].Tag()
	}
	name := fallback
	if i := strings.IndexAny(name, ",="); i >= 0 {
		name = name[:i]
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
