package state

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Policy decides how a node's update for a field is combined with the current value.
type Policy int

const (
	// Replace discards the previous value (last writer wins).
	Replace Policy = iota
	// Append concatenates the new sequence after the existing one, preserving order.
	Append
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Field declares a named state field, its type and its merge policy.
type Field struct {
	Name   string
	Type   Type
	Policy Policy
}

// Replaced declares a field merged with the Replace policy.
func Replaced(name string, t Type) Field {
	return Field{Name: name, Type: t, Policy: Replace}
}

// Appended declares a sequence field merged with the Append policy.
func Appended(name string, elem Type) Field {
	return Field{Name: name, Type: Slice(elem), Policy: Append}
}

// Update is a partial state: field name to new value.
type Update map[string]any

// Delta returns u itself. It lets a plain Update be returned wherever a node result is expected.
func (u Update) Delta() Update { return u }

// Schema is the declared set of state fields. It is immutable once built.
type Schema struct {
	fields map[string]Field
	order  []string
}

// NewSchema validates the field declarations and builds a Schema.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{fields: make(map[string]Field, len(fields))}
	var errs []error

	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			errs = append(errs, &ValidationError{Key: f.Name, Reason: "field name is empty"})
			continue
		case f.Type == nil:
			errs = append(errs, &ValidationError{Key: name, Reason: "field type is nil"})
			continue
		case f.Policy == Append && !isSlice(f.Type):
			errs = append(errs, &ValidationError{Key: name, Reason: fmt.Sprintf("append policy requires a slice type, got %s", f.Type.Name())})
			continue
		}
		if _, dup := s.fields[name]; dup {
			errs = append(errs, &ValidationError{Key: name, Reason: "declared more than once"})
			continue
		}
		f.Name = name
		s.fields[name] = f
		s.order = append(s.order, name)
	}

	if len(errs) > 0 {
		return nil, &AggregateError{Errors: errs}
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for package-level graph definitions.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSchema converts a map of field names to type strings into a Schema.
// A leading "+" marks a slice field merged with the Append policy.
// Example: {"question": "string", "docs": "+[string]", "retries": "int"}
func ParseSchema(typeMap map[string]string) (*Schema, error) {
	names := make([]string, 0, len(typeMap))
	for name := range typeMap {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		typeStr := strings.TrimSpace(typeMap[name])
		policy := Replace
		if strings.HasPrefix(typeStr, "+") {
			policy = Append
			typeStr = typeStr[1:]
		}
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Type: t, Policy: policy})
	}
	return NewSchema(fields...)
}

// Field returns the declaration for name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Fields returns the declarations in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Default returns a state holding the empty value of every declared field.
func (s *Schema) Default() State {
	values := make(map[string]any, len(s.fields))
	for name, f := range s.fields {
		values[name] = f.Type.Zero()
	}
	return State{values: values}
}

// Build merges u into the default state.
func (s *Schema) Build(u Update) (State, error) {
	return s.Merge(s.Default(), u)
}

// Merge combines u into st according to each field's policy and returns the new state.
// st itself is never modified; on error the caller keeps st as the last good state.
func (s *Schema) Merge(st State, u Update) (State, error) {
	if len(u) == 0 {
		return st, nil
	}

	// Check the whole update first so that a failure leaves nothing half-applied.
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		f, ok := s.fields[k]
		if !ok {
			errs = append(errs, &UndeclaredFieldError{Key: k})
			continue
		}
		if err := s.check(f, u[k]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return st, &AggregateError{Errors: errs}
	}

	next := make(map[string]any, len(s.fields))
	for k, v := range st.values {
		next[k] = v
	}
	for _, k := range keys {
		f := s.fields[k]
		v := u[k]
		switch {
		case f.Policy == Append:
			next[k] = concat(next[k], v)
		case isSlice(f.Type):
			next[k] = toList(v)
		default:
			next[k] = deepCopy(v)
		}
	}
	return State{values: next}, nil
}

// Restore rebuilds a state from previously snapshotted values (e.g. a checkpoint).
// Every value replaces the default; appended fields are not concatenated.
func (s *Schema) Restore(values map[string]any) (State, error) {
	st := s.Default()
	var errs []error
	for k, v := range values {
		f, ok := s.fields[k]
		if !ok {
			errs = append(errs, &UndeclaredFieldError{Key: k})
			continue
		}
		if v == nil && f.Type.Zero() == nil {
			continue
		}
		if err := f.Type.Validate(v); err != nil {
			errs = append(errs, &ValidationError{Key: k, Reason: err.Error(), Value: v})
			continue
		}
		if isSlice(f.Type) {
			v = toList(v)
		} else {
			v = deepCopy(v)
		}
		st.values[k] = v
	}
	if len(errs) > 0 {
		return State{}, &AggregateError{Errors: errs}
	}
	return st, nil
}

func (s *Schema) check(f Field, v any) error {
	if f.Policy == Append && !isSequence(v) {
		// A single element is appended as-is.
		elem := f.Type.(*SliceType).Elem()
		if err := elem.Validate(v); err != nil {
			return &ValidationError{Key: f.Name, Reason: err.Error(), Value: v}
		}
		return nil
	}
	if v == nil && f.Type.Zero() == nil {
		return nil
	}
	if err := f.Type.Validate(v); err != nil {
		return &ValidationError{Key: f.Name, Reason: err.Error(), Value: v}
	}
	return nil
}

func isSequence(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// toList deep-copies any slice or array into a fresh []any.
func toList(v any) []any {
	if v == nil {
		return []any{}
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = deepCopy(rv.Index(i).Interface())
	}
	return out
}

// concat returns a new slice: existing elements followed by the new ones.
func concat(existing, v any) []any {
	// Elements already in the state are never handed out uncopied, so they can be shared.
	head, _ := existing.([]any)
	var tail []any
	if isSequence(v) {
		tail = toList(v)
	} else {
		tail = []any{deepCopy(v)}
	}
	out := make([]any, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}
