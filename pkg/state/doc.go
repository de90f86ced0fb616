// Package state declares the shared data a graph invocation works on.
//
// A Schema lists every field a graph may touch, with a Type and a merge Policy.
// Nodes never write into a State; they return a partial Update, and the executor
// folds it in with Schema.Merge:
//
//	schema := state.MustSchema(
//	    state.Replaced("question", state.String()),
//	    state.Appended("docs", state.String()),
//	    state.Replaced("needs_more_evidence", state.Bool()),
//	)
//
//	st := schema.Default()
//	st, err := schema.Merge(st, state.Update{"docs": []string{"clause 3"}})
//	st, err = schema.Merge(st, state.Update{"docs": "clause 5"})
//	// st.Strings("docs") == ["clause 3", "clause 5"]
//
// Replace fields keep the last writer's value. Append fields concatenate in
// execution order. Writing a field the schema does not declare is an error, as is
// a value that fails its Type.
//
// Schemas can also be parsed from type strings, which is how config-driven graphs
// declare their state:
//
//	schema, err := state.ParseSchema(map[string]string{
//	    "question": "string",
//	    "docs":     "+[string]", // "+" selects the Append policy
//	})
package state
