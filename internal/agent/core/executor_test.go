package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/agent/telemetry"
	"github.com/operous/opsassist/internal/capability"
)

// stubAdapter records calls and plays back canned responses per function.
type stubAdapter struct {
	name    string
	calls   []string
	data    map[string]interface{}
	err     error
	failFor int // fail this many calls before succeeding; -1 fails forever
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Call(ctx context.Context, function string, params map[string]interface{}) (map[string]interface{}, error) {
	s.calls = append(s.calls, function)
	if s.failFor < 0 || len(s.calls) <= s.failFor {
		if s.err != nil {
			return nil, s.err
		}
		return nil, fmt.Errorf("boom")
	}
	if s.data != nil {
		return s.data, nil
	}
	return map[string]interface{}{"ok": true}, nil
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	var cards []capability.ToolCard
	cards = append(cards, capability.GitHubToolCards()...)
	cards = append(cards, capability.WeatherToolCards()...)
	cards = append(cards, capability.NewsToolCards()...)
	reg, err := capability.NewRegistry(cards, "")
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return reg
}

func testTelemetry() *telemetry.Telemetry {
	return telemetry.NewTelemetry(config.TelemetryConfig{})
}

func newTestExecutor(t *testing.T, adapters ...ToolAdapter) *Executor {
	t.Helper()
	cfg := config.ExecutorConfig{MaxRetries: 3, RetryDelay: 0}
	return NewExecutor(cfg, adapters, testRegistry(t), testTelemetry())
}

func TestExecuteOneResultPerStepInOrder(t *testing.T) {
	github := &stubAdapter{name: "github", data: map[string]interface{}{"repositories": []map[string]interface{}{}}}
	news := &stubAdapter{name: "news", data: map[string]interface{}{"articles": []map[string]interface{}{}}}
	exec := newTestExecutor(t, github, news)

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "github", Function: "search_repositories", Parameters: map[string]interface{}{"query": "golang"}},
		{ID: "step_2", Tool: "news", Function: "search_news", Parameters: map[string]interface{}{"query": "golang"}},
		{ID: "step_3", Tool: "github", Function: "get_user_repos", Parameters: map[string]interface{}{"username": "torvalds"}},
	}}
	result := exec.Execute(context.Background(), plan)

	if len(result.StepResults) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(result.StepResults))
	}
	for i, want := range []string{"step_1", "step_2", "step_3"} {
		if result.StepResults[i].StepID != want {
			t.Fatalf("result %d: expected %s, got %s", i, want, result.StepResults[i].StepID)
		}
	}
	if result.SuccessfulSteps != 3 || result.FailedSteps != 0 {
		t.Fatalf("expected 3 successes, got %d ok / %d failed", result.SuccessfulSteps, result.FailedSteps)
	}
}

func TestExecuteAlwaysFailingAdapterExhaustsRetries(t *testing.T) {
	weather := &stubAdapter{name: "weather", failFor: -1, err: &ToolError{Tool: "weather", Kind: ErrNetwork, Err: fmt.Errorf("connection refused")}}
	exec := newTestExecutor(t, weather)

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "weather", Function: "get_current_weather", Parameters: map[string]interface{}{"city": "Berlin"}},
	}}
	result := exec.Execute(context.Background(), plan)

	sr := result.StepResults[0]
	if sr.Success {
		t.Fatal("expected failure")
	}
	if sr.Attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", sr.Attempts)
	}
	if len(weather.calls) != 3 {
		t.Fatalf("adapter called %d times, want 3", len(weather.calls))
	}
	if sr.Error == "" {
		t.Fatal("expected error message on failed result")
	}
	if result.FailedSteps != 1 {
		t.Fatalf("expected 1 failed step, got %d", result.FailedSteps)
	}
}

func TestExecuteNotFoundStopsEarly(t *testing.T) {
	github := &stubAdapter{name: "github", failFor: -1, err: &ToolError{Tool: "github", Kind: ErrNotFound, Err: fmt.Errorf("http 404")}}
	exec := newTestExecutor(t, github)

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "github", Function: "get_repository_details", Parameters: map[string]interface{}{"owner": "nobody", "repo": "nothing"}},
	}}
	result := exec.Execute(context.Background(), plan)

	sr := result.StepResults[0]
	if sr.Success {
		t.Fatal("expected failure")
	}
	if len(github.calls) != 1 {
		t.Fatalf("not_found should not retry: adapter called %d times", len(github.calls))
	}
	if sr.Attempts != 1 {
		t.Fatalf("expected 1 recorded attempt, got %d", sr.Attempts)
	}
}

func TestExecutePartialFailureContinues(t *testing.T) {
	github := &stubAdapter{name: "github", failFor: -1}
	news := &stubAdapter{name: "news", data: map[string]interface{}{"articles": []map[string]interface{}{}}}
	exec := newTestExecutor(t, github, news)

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "github", Function: "search_repositories", Parameters: map[string]interface{}{"query": "x"}},
		{ID: "step_2", Tool: "news", Function: "search_news", Parameters: map[string]interface{}{"query": "x"}},
	}}
	result := exec.Execute(context.Background(), plan)

	if !result.StepResults[1].Success {
		t.Fatal("second step should run and succeed despite first step failing")
	}
	if result.SuccessfulSteps != 1 || result.FailedSteps != 1 {
		t.Fatalf("expected 1 ok / 1 failed, got %d / %d", result.SuccessfulSteps, result.FailedSteps)
	}
}

func TestExecuteRecoversAfterTransientFailure(t *testing.T) {
	news := &stubAdapter{name: "news", failFor: 2, data: map[string]interface{}{"articles": []map[string]interface{}{}}}
	exec := newTestExecutor(t, news)

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "news", Function: "search_news", Parameters: map[string]interface{}{"query": "x"}},
	}}
	result := exec.Execute(context.Background(), plan)

	sr := result.StepResults[0]
	if !sr.Success {
		t.Fatalf("expected success on third attempt: %s", sr.Error)
	}
	if sr.Attempts != 3 {
		t.Fatalf("expected 3 attempts recorded, got %d", sr.Attempts)
	}
}

func TestInferFunction(t *testing.T) {
	exec := newTestExecutor(t)

	cases := []struct {
		step Step
		want string
	}{
		{Step{Tool: "github", Parameters: map[string]interface{}{"owner": "a", "repo": "b"}}, "get_repository_details"},
		{Step{Tool: "github", Parameters: map[string]interface{}{"username": "a"}}, "get_user_repos"},
		{Step{Tool: "github", Parameters: map[string]interface{}{"query": "a"}}, "search_repositories"},
		{Step{Tool: "weather", Parameters: map[string]interface{}{"lat": 1.0, "lon": 2.0}}, "get_weather_by_coordinates"},
		{Step{Tool: "weather", Parameters: map[string]interface{}{"city": "Oslo"}}, "get_current_weather"},
		{Step{Tool: "news", Action: "Get top headlines", Parameters: map[string]interface{}{}}, "get_top_headlines"},
		{Step{Tool: "news", Action: "Search articles about Go", Parameters: map[string]interface{}{}}, "search_news"},
	}
	for _, tc := range cases {
		if got := exec.inferFunction(tc.step); got != tc.want {
			t.Errorf("inferFunction(%s %v) = %s, want %s", tc.step.Tool, tc.step.Parameters, got, tc.want)
		}
	}
}

func TestCleanParametersCoercion(t *testing.T) {
	exec := newTestExecutor(t)

	params := exec.cleanParameters("github", "search_repositories", map[string]interface{}{
		"query":    "golang",
		"limit":    "5",
		"unwanted": "drop me",
	})
	if params["limit"] != 5 {
		t.Fatalf("limit not coerced to int: %v (%T)", params["limit"], params["limit"])
	}
	if _, ok := params["unwanted"]; ok {
		t.Fatal("undeclared parameter should be dropped")
	}

	params = exec.cleanParameters("weather", "get_weather_by_coordinates", map[string]interface{}{
		"lat": "52.52",
		"lon": 13,
	})
	if params["lat"] != 52.52 {
		t.Fatalf("lat not coerced to float: %v", params["lat"])
	}
	if params["lon"] != 13.0 {
		t.Fatalf("lon not coerced to float: %v", params["lon"])
	}
}

func TestExecuteContextCancelled(t *testing.T) {
	weather := &stubAdapter{name: "weather", failFor: -1}
	cfg := config.ExecutorConfig{MaxRetries: 3, RetryDelay: time.Minute}
	exec := NewExecutor(cfg, []ToolAdapter{weather}, testRegistry(t), testTelemetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := Plan{Steps: []Step{
		{ID: "step_1", Tool: "weather", Function: "get_current_weather", Parameters: map[string]interface{}{"city": "Berlin"}},
	}}
	result := exec.Execute(ctx, plan)
	if result.StepResults[0].Success {
		t.Fatal("expected failure under cancelled context")
	}
}
