package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/agent/telemetry"
	"github.com/operous/opsassist/internal/capability"
)

// Orchestrator runs the plan, execute, verify pipeline for one query at a
// time. It holds no cross-request state.
type Orchestrator struct {
	config    *config.Config
	planner   *Planner
	executor  *Executor
	verifier  *Verifier
	registry  *capability.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewOrchestrator builds the full pipeline from configuration. A missing
// LLM configuration is fatal; missing tool keys only narrow the registry.
func NewOrchestrator(cfg *config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tel := telemetry.NewTelemetry(cfg.Telemetry)

	llmProvider, err := NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	adapters := NewToolAdapters(cfg.Tools, cfg.General.DefaultTimeout)
	registry, err := buildRegistry(adapters, cfg.Registry.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}

	return &Orchestrator{
		config:    cfg,
		planner:   NewPlanner(cfg, llmProvider, registry, tel),
		executor:  NewExecutor(cfg.Executor, adapters, registry, tel),
		verifier:  NewVerifier(cfg, llmProvider, tel),
		registry:  registry,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
	}, nil
}

// NewOrchestratorWith wires externally constructed pipeline stages.
// Used by tests and by callers that substitute providers or adapters.
func NewOrchestratorWith(cfg *config.Config, planner *Planner, executor *Executor, verifier *Verifier, registry *capability.Registry, tel *telemetry.Telemetry) *Orchestrator {
	return &Orchestrator{
		config:    cfg,
		planner:   planner,
		executor:  executor,
		verifier:  verifier,
		registry:  registry,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
	}
}

func buildRegistry(adapters []ToolAdapter, signingSecret string) (*capability.Registry, error) {
	var cards []capability.ToolCard
	for _, a := range adapters {
		switch a.Name() {
		case "github":
			cards = append(cards, capability.GitHubToolCards()...)
		case "weather":
			cards = append(cards, capability.WeatherToolCards()...)
		case "news":
			cards = append(cards, capability.NewsToolCards()...)
		}
	}
	if signingSecret != "" {
		for i := range cards {
			checksum, err := capability.ComputeChecksum(cards[i])
			if err != nil {
				return nil, err
			}
			signature, err := capability.SignToolCard(cards[i], signingSecret)
			if err != nil {
				return nil, err
			}
			cards[i].Checksum = checksum
			cards[i].Signature = signature
		}
	}
	return capability.NewRegistry(cards, signingSecret)
}

// ValidateQuery applies the query bounds shared by the HTTP API and CLI.
func (o *Orchestrator) ValidateQuery(query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query is empty")
	}
	max := o.config.General.MaxQueryLength
	if max > 0 && utf8.RuneCountInString(query) > max {
		return fmt.Errorf("query exceeds %d characters", max)
	}
	return nil
}

// Registry exposes the tool registry for listing endpoints.
func (o *Orchestrator) Registry() *capability.Registry { return o.registry }

// Plan runs only the planning stage. Debug surface for POST /api/plan.
func (o *Orchestrator) Plan(ctx context.Context, query string) (Plan, error) {
	return o.planner.CreatePlan(ctx, query)
}

// ProcessQuery runs the full pipeline for one query. A *ValidationError
// return means planning failed structurally; every other path returns a
// FinalResponse, even with zero successful steps.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (FinalResponse, error) {
	startTime := time.Now()
	queryID := uuid.NewString()
	o.logger.Printf("processing query %s: %q", queryID, truncate(query, 120))

	plan, err := o.planner.CreatePlan(ctx, query)
	if err != nil {
		o.recordQuery(queryID, query, startTime, false, err.Error(), nil)
		return FinalResponse{}, err
	}

	execResult := o.executor.Execute(ctx, plan)
	verification := o.verifier.Verify(ctx, query, plan, execResult)

	response := FinalResponse{
		Success:     execResult.SuccessfulSteps > 0,
		Query:       query,
		Plan:        &plan,
		StepResults: execResult.StepResults,
		FinalAnswer: verification.FormattedAnswer,
		Metadata: ExecutionMetadata{
			StepsExecuted:   execResult.TotalSteps,
			SuccessfulSteps: execResult.SuccessfulSteps,
			FailedSteps:     execResult.FailedSteps,
			ToolsUsed:       execResult.ToolsUsed,
			ExecutionTime:   time.Since(startTime).Seconds(),
		},
	}

	o.recordQuery(queryID, query, startTime, response.Success, "", execResult.ToolsUsed)
	return response, nil
}

func (o *Orchestrator) recordQuery(id, query string, start time.Time, success bool, errMsg string, tools []string) {
	o.telemetry.RecordQueryEvent(telemetry.QueryEvent{
		ID:             id,
		Query:          query,
		StartTime:      start,
		EndTime:        time.Now(),
		ProcessingTime: time.Since(start),
		Success:        success,
		Error:          errMsg,
		Cost:           0,
		ToolsUsed:      tools,
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
