package demos

import (
	"context"
	"fmt"
	"strings"
)

// Completer is a text completion service (an LLM in production).
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever finds evidence passages for a query. Page 0 holds the best
// matches; later pages widen the search.
type Retriever interface {
	Retrieve(ctx context.Context, query string, page int) ([]string, error)
}

// Deps are the collaborators handed to the demo nodes.
type Deps struct {
	Completer Completer
	Retriever Retriever
}

// StubDeps returns deterministic collaborators that need no network.
func StubDeps() Deps {
	return Deps{
		Completer: StubCompleter{},
		Retriever: StubRetriever{Passages: PolicyClauses},
	}
}

// PolicyClauses is the corpus served by the stub retriever.
var PolicyClauses = []string{
	"제3조: 개인정보 암호화는 전 구간 의무. 민감정보는 AES-256 이상 적용.",
	"제5조: 접근통제는 RBAC로 최소권한 원칙 적용. 정기 권한 검토 필수.",
	"제7조: 로그는 1년 보관, 중요 시스템은 3년. 무결성 검증 포함.",
	"제9조: 외부 접속은 VPN 필수. 다중인증 적용.",
	"제11조: 데이터 백업은 일일 실시. 복구 테스트 분기별 수행.",
}

// StubRetriever serves Passages in pages of PageSize (default 2).
type StubRetriever struct {
	Passages []string
	PageSize int
}

// Retrieve implements Retriever.
func (r StubRetriever) Retrieve(_ context.Context, _ string, page int) ([]string, error) {
	size := r.PageSize
	if size <= 0 {
		size = 2
	}
	start := page * size
	if page < 0 || start >= len(r.Passages) {
		return nil, nil
	}
	end := min(start+size, len(r.Passages))
	return append([]string(nil), r.Passages[start:end]...), nil
}

// StubCompleter answers prompts with canned, keyword-driven text.
type StubCompleter struct{}

// Complete implements Completer.
func (StubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "summarize:"):
		body := strings.TrimSpace(strings.TrimPrefix(prompt, "summarize:"))
		var lines []string
		for _, l := range strings.Split(body, "\n") {
			if l = strings.TrimSpace(l); l == "" {
				continue
			}
			if i := strings.Index(l, "."); i > 0 {
				l = l[:i+1]
			}
			lines = append(lines, "- "+l)
		}
		return strings.Join(lines, "\n"), nil
	case strings.HasPrefix(prompt, "translate:"):
		return "[EN] " + strings.TrimSpace(strings.TrimPrefix(prompt, "translate:")), nil
	case strings.HasPrefix(prompt, "route:"):
		q := strings.TrimPrefix(prompt, "route:")
		switch {
		case strings.Contains(q, "점심") || strings.Contains(q, "식당") || strings.Contains(q, "메뉴"):
			return "cafeteria", nil
		case strings.Contains(q, "일정") || strings.Contains(q, "회의"):
			return "schedule", nil
		default:
			return "FINISH", nil
		}
	case strings.HasPrefix(prompt, "sql:"):
		// First drafts carry a typo the repair loop has to fix.
		return "SELECT name, total FORM orders ORDER BY total DESC LIMIT 3", nil
	case strings.HasPrefix(prompt, "sqlfix:"):
		return strings.ReplaceAll(strings.TrimPrefix(prompt, "sqlfix:"), "FORM", "FROM"), nil
	default:
		return fmt.Sprintf("ok: %s", prompt), nil
	}
}
