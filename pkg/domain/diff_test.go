package domain

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		old      map[string]any
		new      map[string]any
		wantDiff *StateDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new:  map[string]any{"a": 1},
			wantDiff: &StateDiff{
				Changed: map[string]any{"a": 1},
			},
		},
		{
			name:     "No Changes",
			old:      map[string]any{"a": 1, "docs": []any{"x"}},
			new:      map[string]any{"a": 1, "docs": []any{"x"}},
			wantDiff: nil,
		},
		{
			name: "Replace And Add",
			old:  map[string]any{"a": 1, "b": "old"},
			new:  map[string]any{"a": 1, "b": "new", "c": true},
			wantDiff: &StateDiff{
				Changed: map[string]any{"b": "new", "c": true},
			},
		},
		{
			name: "Append Reports Only The Tail",
			old:  map[string]any{"docs": []any{"d1"}},
			new:  map[string]any{"docs": []any{"d1", "d2", "d3"}},
			wantDiff: &StateDiff{
				Appended: map[string][]any{"docs": {"d2", "d3"}},
			},
		},
		{
			name: "Rewritten Sequence Is A Change",
			old:  map[string]any{"docs": []any{"d1"}},
			new:  map[string]any{"docs": []any{"x", "y"}},
			wantDiff: &StateDiff{
				Changed: map[string]any{"docs": []any{"x", "y"}},
			},
		},
		{
			name: "Deletion",
			old:  map[string]any{"a": 1, "b": 2},
			new:  map[string]any{"a": 1},
			wantDiff: &StateDiff{
				Changed: map[string]any{"b": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}
			if !reflect.DeepEqual(got.Changed, tt.wantDiff.Changed) {
				t.Errorf("Diff().Changed = %v, want %v", got.Changed, tt.wantDiff.Changed)
			}
			if !reflect.DeepEqual(got.Appended, tt.wantDiff.Appended) {
				t.Errorf("Diff().Appended = %v, want %v", got.Appended, tt.wantDiff.Appended)
			}
		})
	}
}

func TestDiffKeys(t *testing.T) {
	d := Diff(map[string]any{"docs": []any{}}, map[string]any{"docs": []any{"x"}, "q": "y"})
	keys := d.Keys()
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"docs", "q"}) {
		t.Errorf("Keys() = %v", keys)
	}

	var empty *StateDiff
	if !empty.IsEmpty() || empty.Keys() != nil {
		t.Error("nil diff should be empty")
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Deletions as Null", func(t *testing.T) {
		diff := Diff(map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1})
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
		if strings.Contains(string(bytes), `"appended"`) {
			t.Errorf("JSON should omit empty 'appended', got: %s", string(bytes))
		}
	})
}
