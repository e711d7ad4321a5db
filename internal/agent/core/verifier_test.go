package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func newTestVerifier(llm LLMProvider) *Verifier {
	return NewVerifier(testConfig(), llm, testTelemetry())
}

func TestVerifyUsesLLMAnswer(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"is_complete": true, "formatted_answer": "Berlin is 21C and sunny.", "missing_info": [], "suggestions": []}`}}
	verifier := newTestVerifier(llm)

	result := ExecutionResult{
		StepResults: []StepResult{
			{StepID: "step_1", Tool: "weather", Function: "get_current_weather", Success: true, Attempts: 1,
				Data: map[string]interface{}{"temperature_c": 21.0}},
		},
		TotalSteps:      1,
		SuccessfulSteps: 1,
	}
	v := verifier.Verify(context.Background(), "weather in berlin", Plan{Task: "get weather"}, result)

	if !v.IsComplete {
		t.Fatal("expected complete verification")
	}
	if v.FormattedAnswer != "Berlin is 21C and sunny." {
		t.Fatalf("unexpected answer: %q", v.FormattedAnswer)
	}
}

func TestVerifyDegradesWhenLLMFails(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("llm unavailable")}
	verifier := newTestVerifier(llm)

	result := ExecutionResult{
		StepResults: []StepResult{
			{StepID: "step_1", Tool: "news", Function: "get_top_headlines", Success: true, Attempts: 1,
				Data: map[string]interface{}{
					"articles": []map[string]interface{}{
						{"title": "Go 1.25 released", "source": "The Go Blog"},
					},
				}},
		},
		TotalSteps:      1,
		SuccessfulSteps: 1,
	}
	v := verifier.Verify(context.Background(), "latest tech news", Plan{}, result)

	if v.FormattedAnswer == "" {
		t.Fatal("degraded verification must still produce an answer")
	}
	if !strings.Contains(v.FormattedAnswer, "Go 1.25 released") {
		t.Fatalf("degraded answer should include raw data: %q", v.FormattedAnswer)
	}
}

func TestVerifyDegradesOnUnparseableLLMOutput(t *testing.T) {
	llm := &stubLLM{responses: []string{"sorry, something went wrong"}}
	verifier := newTestVerifier(llm)

	result := ExecutionResult{
		StepResults: []StepResult{
			{StepID: "step_1", Tool: "weather", Function: "get_current_weather", Success: true, Attempts: 1,
				Data: map[string]interface{}{
					"location":         map[string]interface{}{"city": "Oslo", "country": "NO"},
					"description":      "light rain",
					"temperature_c":    9.5,
					"temperature_f":    49.1,
					"humidity_percent": 80,
				}},
		},
		TotalSteps:      1,
		SuccessfulSteps: 1,
	}
	v := verifier.Verify(context.Background(), "weather in oslo", Plan{}, result)

	if !strings.Contains(v.FormattedAnswer, "Oslo") {
		t.Fatalf("expected deterministic weather formatting, got %q", v.FormattedAnswer)
	}
}

func TestVerifyAllStepsFailedStillAnswers(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"is_complete": true, "formatted_answer": "should not be used"}`}}
	verifier := newTestVerifier(llm)

	result := ExecutionResult{
		StepResults: []StepResult{
			{StepID: "step_1", Tool: "github", Function: "search_repositories", Success: false, Attempts: 3, Error: "network timeout"},
			{StepID: "step_2", Tool: "news", Function: "search_news", Success: false, Attempts: 3, Error: "http 401"},
		},
		TotalSteps:  2,
		FailedSteps: 2,
	}
	v := verifier.Verify(context.Background(), "repos and news", Plan{}, result)

	if v.IsComplete {
		t.Fatal("all-failed execution cannot be complete")
	}
	if v.FormattedAnswer == "" {
		t.Fatal("zero successful steps must still yield an answer")
	}
	if len(v.FailedSteps) != 2 {
		t.Fatalf("expected 2 failed step ids, got %v", v.FailedSteps)
	}
	if llm.calls != 0 {
		t.Fatal("no LLM call expected when nothing succeeded")
	}
}

func TestVerifyIncompleteWhenStepsFailed(t *testing.T) {
	llm := &stubLLM{responses: []string{`{"is_complete": true, "formatted_answer": "partial answer"}`}}
	verifier := newTestVerifier(llm)

	result := ExecutionResult{
		StepResults: []StepResult{
			{StepID: "step_1", Tool: "weather", Success: true, Attempts: 1, Data: map[string]interface{}{}},
			{StepID: "step_2", Tool: "news", Success: false, Attempts: 3, Error: "boom"},
		},
		TotalSteps:      2,
		SuccessfulSteps: 1,
		FailedSteps:     1,
	}
	v := verifier.Verify(context.Background(), "q", Plan{}, result)

	// the LLM cannot overrule recorded step failures
	if v.IsComplete {
		t.Fatal("verification with failed steps must not be complete")
	}
	if v.FormattedAnswer != "partial answer" {
		t.Fatalf("unexpected answer: %q", v.FormattedAnswer)
	}
}
