package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/operous/opsassist/config"
)

func newTestOrchestrator(t *testing.T, llm LLMProvider, adapters ...ToolAdapter) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	reg := testRegistry(t)
	tel := testTelemetry()
	return NewOrchestratorWith(cfg,
		NewPlanner(cfg, llm, reg, tel),
		NewExecutor(config.ExecutorConfig{MaxRetries: 3, RetryDelay: 0}, adapters, reg, tel),
		NewVerifier(cfg, llm, tel),
		reg, tel)
}

func TestProcessQueryTechnologyNews(t *testing.T) {
	llm := &stubLLM{responses: []string{
		// planning
		`{"task": "Get the latest technology news", "steps": [{"id": "step_1", "tool": "news", "function": "get_top_headlines", "action": "Get top technology headlines", "parameters": {"category": "technology", "limit": 5}}]}`,
		// verification
		`{"is_complete": true, "formatted_answer": "Top technology story today: Go 1.25 released.", "missing_info": [], "suggestions": []}`,
	}}
	news := &stubAdapter{name: "news", data: map[string]interface{}{
		"articles": []map[string]interface{}{
			{"title": "Go 1.25 released", "source": "The Go Blog"},
		},
	}}
	orch := newTestOrchestrator(t, llm, news)

	response, err := orch.ProcessQuery(context.Background(), "Get the latest technology news")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if !response.Success {
		t.Fatal("expected success")
	}
	if len(response.StepResults) != 1 {
		t.Fatalf("expected single news step, got %d", len(response.StepResults))
	}
	if response.StepResults[0].Tool != "news" || response.StepResults[0].Function != "get_top_headlines" {
		t.Fatalf("unexpected step: %+v", response.StepResults[0])
	}
	if strings.TrimSpace(response.FinalAnswer) == "" {
		t.Fatal("final answer must be non-empty")
	}
	if response.Metadata.StepsExecuted != 1 || response.Metadata.SuccessfulSteps != 1 {
		t.Fatalf("unexpected metadata: %+v", response.Metadata)
	}
	if len(response.Metadata.ToolsUsed) != 1 || response.Metadata.ToolsUsed[0] != "news" {
		t.Fatalf("unexpected tools used: %v", response.Metadata.ToolsUsed)
	}
}

func TestProcessQueryValidationErrorBeforeExecution(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"task": "x", "steps": [{"id": "s1", "tool": "filesystem", "function": "read", "action": "read files", "parameters": {}}]}`}}
	news := &stubAdapter{name: "news"}
	orch := newTestOrchestrator(t, llm, news)

	_, err := orch.ProcessQuery(context.Background(), "read my files")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(news.calls) != 0 {
		t.Fatal("no adapter may be called when plan validation fails")
	}
}

func TestProcessQueryAllToolsFailStillReturnsResponse(t *testing.T) {
	llm := &stubLLM{responses: []string{
		`{"task": "x", "steps": [{"id": "step_1", "tool": "github", "function": "search_repositories", "action": "search", "parameters": {"query": "x"}}]}`,
	}}
	github := &stubAdapter{name: "github", failFor: -1}
	orch := newTestOrchestrator(t, llm, github)

	response, err := orch.ProcessQuery(context.Background(), "find repos")
	if err != nil {
		t.Fatalf("execution failure must not fail the pipeline: %v", err)
	}
	if response.Success {
		t.Fatal("expected Success=false with zero successful steps")
	}
	if response.FinalAnswer == "" {
		t.Fatal("expected a final answer even when every step failed")
	}
	if response.StepResults[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", response.StepResults[0].Attempts)
	}
}

func TestValidateQueryBounds(t *testing.T) {
	orch := newTestOrchestrator(t, &stubLLM{responses: []string{"{}"}})

	if err := orch.ValidateQuery(""); err == nil {
		t.Fatal("empty query must be rejected")
	}
	if err := orch.ValidateQuery("   "); err == nil {
		t.Fatal("whitespace query must be rejected")
	}
	if err := orch.ValidateQuery(strings.Repeat("a", 2001)); err == nil {
		t.Fatal("oversize query must be rejected")
	}
	if err := orch.ValidateQuery("what's the weather in Berlin?"); err != nil {
		t.Fatalf("valid query rejected: %v", err)
	}
}

func TestValidateQueryCountsCharactersNotBytes(t *testing.T) {
	orch := newTestOrchestrator(t, &stubLLM{responses: []string{"{}"}})

	// 2000 two-byte runes: 4000 bytes but exactly at the character bound
	if err := orch.ValidateQuery(strings.Repeat("é", 2000)); err != nil {
		t.Fatalf("2000-character query rejected: %v", err)
	}
	if err := orch.ValidateQuery(strings.Repeat("é", 2001)); err == nil {
		t.Fatal("2001-character query must be rejected")
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	got := truncate(strings.Repeat("日", 10), 4)
	if got != strings.Repeat("日", 4)+"..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if s := "short"; truncate(s, 10) != s {
		t.Fatal("short string must pass through unchanged")
	}
}
