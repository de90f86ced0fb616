package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/ports"
)

// Mask replaces string values whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks checkpoint values whose
// field name (or nested map key) matches one of the patterns. Only strings are
// masked, so a masked checkpoint still restores against its schema; a resumed
// run sees the mask instead of the original text.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, runID string, cp *domain.Checkpoint) error {
	// Never touch the caller's checkpoint.
	cloned := *cp
	cloned.Values = m.mask(cp.Values, false).(map[string]any)
	return m.next.Save(ctx, runID, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, runID)
}

func (m *piiMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// mask returns a copy of v with strings under sensitive keys replaced.
func (m *piiMiddleware) mask(v any, sensitive bool) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, sub := range x {
			out[k] = m.mask(sub, sensitive || m.matches(k))
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, sub := range x {
			out[i] = m.mask(sub, sensitive)
		}
		return out
	case string:
		if sensitive {
			return Mask
		}
		return x
	default:
		return v
	}
}
