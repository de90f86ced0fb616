package domain

import (
	"reflect"
)

// StateDiff represents the changes one step made to the state.
// It is designed to be serialized to JSON for step traces and event streams.
type StateDiff struct {
	// Changed contains replaced, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Changed map[string]any `json:"changed,omitempty"`

	// Appended contains only the *new* tail of sequences that grew by appending.
	Appended map[string][]any `json:"appended,omitempty"`
}

// Diff calculates the difference between two state snapshots.
// If oldValues is nil, every key in newValues is reported as changed (initial load).
// Returns nil when nothing changed.
func Diff(oldValues, newValues map[string]any) *StateDiff {
	diff := &StateDiff{}

	for k, newVal := range newValues {
		oldVal, exists := oldValues[k]
		if !exists {
			diff.set(k, newVal)
			continue
		}
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		if tail, ok := appendedTail(oldVal, newVal); ok {
			if diff.Appended == nil {
				diff.Appended = make(map[string][]any)
			}
			diff.Appended[k] = tail
			continue
		}
		diff.set(k, newVal)
	}

	for k := range oldValues {
		if _, exists := newValues[k]; !exists {
			diff.set(k, nil)
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func (d *StateDiff) set(k string, v any) {
	if d.Changed == nil {
		d.Changed = make(map[string]any)
	}
	d.Changed[k] = v
}

// appendedTail reports the new elements if newVal is oldVal with elements appended.
func appendedTail(oldVal, newVal any) ([]any, bool) {
	oldList, ok := oldVal.([]any)
	if !ok {
		return nil, false
	}
	newList, ok := newVal.([]any)
	if !ok || len(newList) <= len(oldList) {
		return nil, false
	}
	if !reflect.DeepEqual(oldList, newList[:len(oldList)]) {
		return nil, false
	}
	tail := make([]any, len(newList)-len(oldList))
	copy(tail, newList[len(oldList):])
	return tail, true
}

// Keys returns every field touched by the diff.
func (d *StateDiff) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, len(d.Changed)+len(d.Appended))
	for k := range d.Changed {
		keys = append(keys, k)
	}
	for k := range d.Appended {
		keys = append(keys, k)
	}
	return keys
}

// IsEmpty checks if the diff contains any changes.
func (d *StateDiff) IsEmpty() bool {
	return d == nil || (len(d.Changed) == 0 && len(d.Appended) == 0)
}
