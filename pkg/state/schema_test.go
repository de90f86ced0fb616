package state_test

import (
	"testing"

	"github.com/aretw0/stategraph/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *state.Schema {
	t.Helper()
	s, err := state.NewSchema(
		state.Replaced("question", state.String()),
		state.Replaced("retries", state.Int()),
		state.Replaced("needs_more_evidence", state.Bool()),
		state.Appended("docs", state.String()),
		state.Replaced("tags", state.Slice(state.String())),
	)
	require.NoError(t, err)
	return s
}

func TestNewSchema_Invalid(t *testing.T) {
	t.Run("Duplicate Field", func(t *testing.T) {
		_, err := state.NewSchema(
			state.Replaced("x", state.Int()),
			state.Replaced("x", state.String()),
		)
		require.Error(t, err)
		assert.Len(t, state.ValidationErrors(err), 1)
	})

	t.Run("Append On Scalar", func(t *testing.T) {
		_, err := state.NewSchema(state.Field{Name: "x", Type: state.Int(), Policy: state.Append})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append policy requires a slice type")
	})

	t.Run("Empty Name And Nil Type", func(t *testing.T) {
		_, err := state.NewSchema(
			state.Field{Name: " ", Type: state.Int()},
			state.Field{Name: "y"},
		)
		require.Error(t, err)
		assert.Len(t, state.ValidationErrors(err), 2)
	})
}

func TestSchema_Default(t *testing.T) {
	s := testSchema(t)
	st := s.Default()

	assert.Equal(t, "", st.String("question"))
	assert.Equal(t, 0, st.Int("retries"))
	assert.False(t, st.Bool("needs_more_evidence"))
	assert.Equal(t, 0, st.Len("docs"))
	assert.Equal(t, []string{"docs", "needs_more_evidence", "question", "retries", "tags"}, st.Keys())
}

func TestSchema_MergeReplace(t *testing.T) {
	s := testSchema(t)
	st := s.Default()

	st, err := s.Merge(st, state.Update{"question": "first"})
	require.NoError(t, err)
	st, err = s.Merge(st, state.Update{"question": "second", "retries": 2})
	require.NoError(t, err)

	assert.Equal(t, "second", st.String("question"))
	assert.Equal(t, 2, st.Int("retries"))
}

func TestSchema_MergeAppendPreservesOrder(t *testing.T) {
	s := testSchema(t)
	st := s.Default()

	st, err := s.Merge(st, state.Update{"docs": []string{"n1"}})
	require.NoError(t, err)
	st, err = s.Merge(st, state.Update{"docs": "n2"})
	require.NoError(t, err)
	st, err = s.Merge(st, state.Update{"docs": []any{"n3", "n4"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, st.Strings("docs"))
	last, ok := st.Last("docs")
	assert.True(t, ok)
	assert.Equal(t, "n4", last)
}

func TestSchema_MergeIsCopyOnWrite(t *testing.T) {
	s := testSchema(t)
	before, err := s.Build(state.Update{"docs": []string{"a"}, "question": "q"})
	require.NoError(t, err)

	after, err := s.Merge(before, state.Update{"docs": "b", "question": "q2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, before.Strings("docs"))
	assert.Equal(t, "q", before.String("question"))
	assert.Equal(t, []string{"a", "b"}, after.Strings("docs"))

	// Mutating an accessor result never leaks back.
	list := after.List("docs")
	list[0] = "mutated"
	assert.Equal(t, "a", after.List("docs")[0])
}

func TestSchema_MergeRejectsWholeUpdate(t *testing.T) {
	s := testSchema(t)
	st, err := s.Build(state.Update{"question": "keep"})
	require.NoError(t, err)

	t.Run("Undeclared Field", func(t *testing.T) {
		got, err := s.Merge(st, state.Update{"question": "changed", "unknown": 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, state.ErrUndeclaredField)
		assert.Equal(t, "keep", got.String("question"))
	})

	t.Run("Wrong Type", func(t *testing.T) {
		_, err := s.Merge(st, state.Update{"retries": "three"})
		require.Error(t, err)
		var vErr *state.ValidationError
		assert.ErrorAs(t, err, &vErr)
		assert.Equal(t, "retries", vErr.Key)
	})

	t.Run("Wrong Append Element", func(t *testing.T) {
		_, err := s.Merge(st, state.Update{"docs": 42})
		assert.Error(t, err)
	})
}

func TestSchema_Restore(t *testing.T) {
	s := testSchema(t)

	st, err := s.Restore(map[string]any{
		"question": "q",
		"retries":  float64(2), // as decoded from JSON
		"docs":     []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Int("retries"))
	assert.Equal(t, []string{"a", "b"}, st.Strings("docs"))

	_, err = s.Restore(map[string]any{"nope": true})
	assert.ErrorIs(t, err, state.ErrUndeclaredField)
}

func TestParseSchema(t *testing.T) {
	s, err := state.ParseSchema(map[string]string{
		"question": "string",
		"docs":     "+[string]",
		"tags":     "[string]",
	})
	require.NoError(t, err)

	docs, ok := s.Field("docs")
	require.True(t, ok)
	assert.Equal(t, state.Append, docs.Policy)

	tags, _ := s.Field("tags")
	assert.Equal(t, state.Replace, tags.Policy)

	_, err = state.ParseSchema(map[string]string{"x": "+int"})
	assert.Error(t, err)
}

func TestState_Decode(t *testing.T) {
	s := testSchema(t)
	st, err := s.Build(state.Update{
		"question": "점심 뭐 먹지?",
		"docs":     []string{"a", "b"},
		"retries":  1,
	})
	require.NoError(t, err)

	var out struct {
		Question string   `state:"question"`
		Docs     []string `state:"docs"`
		Retries  int      `state:"retries"`
	}
	require.NoError(t, st.Decode(&out))
	assert.Equal(t, "점심 뭐 먹지?", out.Question)
	assert.Equal(t, []string{"a", "b"}, out.Docs)
	assert.Equal(t, 1, out.Retries)
}

func TestState_NestedValuesAreCopied(t *testing.T) {
	s := state.MustSchema(
		state.Replaced("config", state.Any()),
		state.Replaced("labels", state.Any()),
		state.Appended("events", state.Any()),
	)

	config := map[string]any{"retries": 1, "hosts": []any{"a"}}
	labels := map[string][]string{"env": {"prod"}}
	st, err := s.Build(state.Update{
		"config": config,
		"labels": labels,
		"events": map[string]any{"kind": "start"},
	})
	require.NoError(t, err)

	// The caller's input is not shared with the state.
	config["retries"] = 9
	config["hosts"].([]any)[0] = "z"
	labels["env"][0] = "dev"

	got, _ := st.Get("config")
	assert.Equal(t, map[string]any{"retries": 1, "hosts": []any{"a"}}, got)
	gotLabels, _ := st.Get("labels")
	assert.Equal(t, map[string][]string{"env": {"prod"}}, gotLabels)

	// Nor are the values handed out by accessors.
	got.(map[string]any)["retries"] = 5
	gotLabels.(map[string][]string)["env"][0] = "qa"
	st.List("events")[0].(map[string]any)["kind"] = "stop"
	st.Snapshot()["config"].(map[string]any)["hosts"].([]any)[0] = "y"

	assert.Equal(t, map[string]any{"retries": 1, "hosts": []any{"a"}}, st.Snapshot()["config"])
	again, _ := st.Get("labels")
	assert.Equal(t, map[string][]string{"env": {"prod"}}, again)
	last, _ := st.Last("events")
	assert.Equal(t, map[string]any{"kind": "start"}, last)
}
