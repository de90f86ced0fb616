package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/stategraph/pkg/state"
	"gopkg.in/yaml.v3"
)

// ParseInput reads an initial state update from a JSON or YAML object.
// A value starting with '@' names a file to read. Empty input yields nil.
func ParseInput(raw string) (state.Update, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		raw = string(data)
	}

	// JSON is valid YAML, so one decoder serves both.
	var u map[string]any
	if err := yaml.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("input must be a JSON or YAML object: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("input must be a JSON or YAML object")
	}
	return state.Update(u), nil
}
