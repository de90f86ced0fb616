package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// State is a read-only view of the shared data of one invocation.
// The executor replaces it wholesale on every merge; nodes only ever see a snapshot.
// Accessors return deep copies of maps and slices, so callers cannot reach the
// underlying storage. Values behind pointers or inside structs are not copied.
type State struct {
	values map[string]any
}

// Get returns the raw value for key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return deepCopy(v), ok
}

// String returns the value for key as a string, or "" when absent or not a string.
func (s State) String(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Bool returns the value for key as a bool, or false when absent or not a bool.
func (s State) Bool(key string) bool {
	v, _ := s.values[key].(bool)
	return v
}

// Int returns the value for key as an int. Whole floats (from JSON) are converted.
func (s State) Int(key string) int {
	switch v := s.values[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	default:
		return 0
	}
}

// Float returns the value for key as a float64.
func (s State) Float(key string) float64 {
	switch v := s.values[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	default:
		return 0
	}
}

// List returns a copy of the sequence stored under key.
func (s State) List(key string) []any {
	l, _ := s.values[key].([]any)
	return cloneList(l)
}

// Strings returns the sequence under key with every element formatted as a string.
func (s State) Strings(key string) []string {
	l, _ := s.values[key].([]any)
	out := make([]string, 0, len(l))
	for _, v := range l {
		if str, ok := v.(string); ok {
			out = append(out, str)
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// Len returns the length of the sequence stored under key.
func (s State) Len(key string) int {
	l, _ := s.values[key].([]any)
	return len(l)
}

// Last returns the last element of the sequence stored under key.
func (s State) Last(key string) (any, bool) {
	l, _ := s.values[key].([]any)
	if len(l) == 0 {
		return nil, false
	}
	return deepCopy(l[len(l)-1]), true
}

// Keys returns the field names present in the state, sorted.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of all values, safe to keep or mutate.
func (s State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = deepCopy(v)
	}
	return out
}

// Decode copies the state into a typed struct (or map) using mapstructure tags.
func (s State) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "state",
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(s.Snapshot()); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

// MarshalJSON renders the state as a plain JSON object.
func (s State) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

func cloneList(l []any) []any {
	if l == nil {
		return nil
	}
	return deepCopy(l).([]any)
}

// deepCopy copies maps and slices recursively, keeping their concrete types.
func deepCopy(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		if x == nil {
			return x
		}
		out := make(map[string]any, len(x))
		for k, sub := range x {
			out[k] = deepCopy(sub)
		}
		return out
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i, sub := range x {
			out[i] = deepCopy(sub)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value(), rv.Type().Elem()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyValue(rv.Index(i), rv.Type().Elem()))
		}
		return out.Interface()
	default:
		return v
	}
}

func copyValue(v reflect.Value, t reflect.Type) reflect.Value {
	c := deepCopy(v.Interface())
	if c == nil {
		return reflect.Zero(t)
	}
	return reflect.ValueOf(c)
}
