package demos

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/stategraph/pkg/graph"
	"github.com/aretw0/stategraph/pkg/state"
)

// Action is one follow-up item derived from the policy.
type Action struct {
	Team     string `state:"team" json:"team"`
	Action   string `state:"action" json:"action"`
	Due      string `state:"due" json:"due"`
	Type     string `state:"type" json:"type"`
	Evidence string `state:"evidence" json:"evidence"`
}

// maxPolicyRetries bounds re-retrieval before moving on with thin evidence.
const maxPolicyRetries = 3

const noDocuments = "문서를 찾을 수 없습니다."

var actionRules = []struct {
	keyword string
	team    string
	action  string
	kind    string
	due     string
}{
	{"암호화", "보안", "민감정보 저장소 AES-256 적용 현황 점검", "점검", "2주"},
	{"접근통제", "보안", "RBAC 권한 정기 검토 절차 수립", "프로세스", "1개월"},
	{"로그", "운영", "중요 시스템 로그 3년 보관 및 무결성 검증", "설정", "1개월"},
	{"VPN", "개발", "외부 접속 경로 VPN 및 다중인증 강제", "설정", "2주"},
	{"백업", "운영", "분기별 복구 테스트 일정 등록", "훈련", "분기"},
}

// Policy reads policy clauses, summarizes them (retrieving again while evidence
// is thin), derives team actions, reviews compliance and writes a bilingual report.
func Policy(deps Deps, opts ...graph.Option) (*graph.Compiled, error) {
	schema, err := state.NewSchema(
		state.Replaced("query", state.String()),
		state.Appended("docs", state.String()),
		state.Replaced("summary", state.String()),
		state.Replaced("actions", state.Slice(state.Any())),
		state.Replaced("compliance", state.String()),
		state.Replaced("report_ko", state.String()),
		state.Replaced("report_en", state.String()),
		state.Replaced("needs_more_evidence", state.Bool()),
		state.Replaced("retry_count", state.Int()),
	)
	if err != nil {
		return nil, err
	}

	retriever := func(ctx context.Context, s state.State) (graph.Result, error) {
		docs, err := deps.Retriever.Retrieve(ctx, s.String("query"), s.Int("retry_count"))
		if err != nil {
			// Degrade: the summarizer decides whether to retry.
			return state.Update{"needs_more_evidence": true, "retry_count": s.Int("retry_count") + 1}, nil
		}
		u := state.Update{
			"needs_more_evidence": len(docs) == 0,
			"retry_count":         s.Int("retry_count") + 1,
		}
		if len(docs) > 0 {
			u["docs"] = docs
		}
		return u, nil
	}

	summarizer := func(ctx context.Context, s state.State) (graph.Result, error) {
		docs := s.Strings("docs")
		if len(docs) == 0 {
			return state.Update{"summary": noDocuments, "needs_more_evidence": true}, nil
		}
		summary, err := deps.Completer.Complete(ctx, "summarize:\n"+strings.Join(docs, "\n"))
		if err != nil {
			return state.Update{"summary": "요약 생성 중 오류가 발생했습니다.", "needs_more_evidence": true}, nil
		}
		return state.Update{
			"summary":             summary,
			"needs_more_evidence": len(strings.Split(summary, "\n")) < 3,
		}, nil
	}

	afterSummary := func(s state.State) string {
		if s.Bool("needs_more_evidence") && s.Int("retry_count") < maxPolicyRetries {
			return "retry"
		}
		return "proceed"
	}

	action := func(_ context.Context, s state.State) (graph.Result, error) {
		if summary := s.String("summary"); summary == "" || summary == noDocuments {
			return state.Update{"actions": []any{}}, nil
		}
		actions := []any{}
		for _, doc := range s.Strings("docs") {
			for _, r := range actionRules {
				if strings.Contains(doc, r.keyword) {
					actions = append(actions, map[string]any{
						"team":     r.team,
						"action":   r.action,
						"due":      r.due,
						"type":     r.kind,
						"evidence": clauseID(doc),
					})
				}
			}
		}
		return state.Update{"actions": actions}, nil
	}

	compliance := func(_ context.Context, s state.State) (graph.Result, error) {
		var in struct {
			Actions []Action `state:"actions"`
		}
		if err := s.Decode(&in); err != nil {
			return nil, err
		}
		if len(in.Actions) == 0 {
			return state.Update{"compliance": "액션아이템이 없어 준수성 검토를 수행할 수 없습니다."}, nil
		}

		teams := make(map[string]int)
		for _, a := range in.Actions {
			teams[a.Team]++
		}
		var sb strings.Builder
		sb.WriteString("1. 주요 리스크\n")
		for _, a := range in.Actions {
			if a.Due == "2주" {
				fmt.Fprintf(&sb, "- [%s] %s: 기한이 짧아 일정 리스크 존재 (%s)\n", a.Team, a.Action, a.Evidence)
			}
		}
		sb.WriteString("2. 규정 준수 여부\n")
		fmt.Fprintf(&sb, "- 근거 조항 %d건 중 %d건에 액션 배정\n", s.Len("docs"), len(in.Actions))
		sb.WriteString("3. 보완책 제안\n")
		if teams["준법감시"] == 0 {
			sb.WriteString("- 준법감시팀 검토 단계 추가\n")
		}
		return state.Update{"compliance": strings.TrimSpace(sb.String())}, nil
	}

	translator := func(ctx context.Context, s state.State) (graph.Result, error) {
		var in struct {
			Actions []Action `state:"actions"`
		}
		if err := s.Decode(&in); err != nil {
			return nil, err
		}

		var actions strings.Builder
		for i, a := range in.Actions {
			fmt.Fprintf(&actions, "%d. [%s] %s (기한: %s, 유형: %s)\n", i+1, a.Team, a.Action, a.Due, a.Type)
		}
		reportKO := fmt.Sprintf("[정책 요약]\n%s\n\n[액션아이템]\n%s\n[리스크 및 준수성 검토]\n%s\n\n[근거 조항]\n%s",
			s.String("summary"), actions.String(), s.String("compliance"), strings.Join(s.Strings("docs"), "\n"))

		reportEN, err := deps.Completer.Complete(ctx, "translate:"+reportKO)
		if err != nil {
			reportEN = "Error occurred during report generation."
		}
		return state.Update{"report_ko": reportKO, "report_en": reportEN}, nil
	}

	b := graph.New(schema)
	_ = b.AddNode("retriever", retriever, graph.Writes("docs", "needs_more_evidence", "retry_count"))
	_ = b.AddNode("summarizer", summarizer, graph.Writes("summary", "needs_more_evidence"))
	_ = b.AddNode("action", action, graph.Writes("actions"))
	_ = b.AddNode("compliance", compliance, graph.Writes("compliance"))
	_ = b.AddNode("translator", translator, graph.Writes("report_ko", "report_en"))
	_ = b.AddEdge("retriever", "summarizer")
	_ = b.AddConditionalEdges("summarizer", afterSummary, map[string]string{
		"retry":   "retriever",
		"proceed": "action",
	})
	_ = b.AddEdge("action", "compliance")
	_ = b.AddEdge("compliance", "translator")
	_ = b.AddEdge("translator", graph.END)
	_ = b.SetEntryPoint("retriever")

	return b.Compile(opts...)
}

func clauseID(doc string) string {
	if i := strings.Index(doc, ":"); i > 0 {
		return doc[:i]
	}
	return doc
}
