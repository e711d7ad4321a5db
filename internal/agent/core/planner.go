package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/agent/telemetry"
	"github.com/operous/opsassist/internal/capability"
)

// Planner converts a natural language query into a validated execution plan
type Planner struct {
	config      *config.Config
	llmProvider LLMProvider
	registry    *capability.Registry
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewPlanner creates a new planner instance
func NewPlanner(cfg *config.Config, llmProvider LLMProvider, registry *capability.Registry, tel *telemetry.Telemetry) *Planner {
	return &Planner{
		config:      cfg,
		llmProvider: llmProvider,
		registry:    registry,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// CreatePlan produces a validated plan for a query. A *ValidationError
// return means the LLM output did not fit the registered tool set; the
// caller surfaces it without retrying.
func (p *Planner) CreatePlan(ctx context.Context, query string) (Plan, error) {
	startTime := time.Now()

	prompt := p.createPlanningPrompt(query)
	model := p.planningModel()

	response, inTok, outTok, err := p.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.2,
		"max_tokens":  1500,
		"json":        true,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("failed to generate plan: %w", err)
	}
	p.telemetry.RecordLLMUsage("planning", model, inTok, outTok, p.llmProvider.CalculateCost(inTok, outTok, model))

	plan, err := p.parsePlanningResponse(query, response)
	if err != nil {
		return Plan{}, err
	}
	if err := p.ValidatePlan(plan); err != nil {
		return Plan{}, err
	}

	p.logger.Printf("planning completed in %v with %d steps", time.Since(startTime), len(plan.Steps))
	return plan, nil
}

func (p *Planner) planningModel() string {
	model := p.config.LLM.Routing.Planning
	if model == "" {
		model = p.config.LLM.Routing.Fallback
	}
	return model
}

func (p *Planner) createPlanningPrompt(query string) string {
	var tools strings.Builder
	for _, tool := range p.registry.Tools() {
		fmt.Fprintf(&tools, "- %s:\n", tool)
		for _, card := range p.registry.Functions(tool) {
			fmt.Fprintf(&tools, "  - %s(%s): %s\n", card.Function, strings.Join(card.Parameters, ", "), card.Description)
		}
	}

	return fmt.Sprintf(`You are a planning agent that converts a user request into an ordered list of tool invocations.

USER QUERY: %s

AVAILABLE TOOLS AND FUNCTIONS:
%s
PLANNING REQUIREMENTS:
1. Use ONLY the tools and functions listed above.
2. Break the query into the minimal sequence of steps needed to answer it.
3. Steps run strictly in order; later steps cannot read earlier results.
4. Fill parameters from the query; omit parameters you cannot infer.
5. For news about a subject area (technology, business, sports, science, health), prefer get_top_headlines with that category.

OUTPUT FORMAT (JSON):
{
  "task": "One sentence restating what the user wants",
  "steps": [
    {
      "id": "step_1",
      "tool": "tool_name",
      "function": "function_name",
      "action": "Human readable description of this step",
      "parameters": {"param": "value"}
    }
  ],
  "reasoning": "Why these steps answer the query"
}

Respond ONLY with the JSON object. Do not include any other text.`, query, tools.String())
}

func (p *Planner) parsePlanningResponse(query, response string) (Plan, error) {
	jsonStr := extractFirstJSON(response)

	var raw struct {
		Task  string `json:"task"`
		Steps []struct {
			ID         string                 `json:"id"`
			Tool       string                 `json:"tool"`
			Function   string                 `json:"function"`
			Action     string                 `json:"action"`
			Parameters map[string]interface{} `json:"parameters"`
		} `json:"steps"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return Plan{}, &ValidationError{Reason: fmt.Sprintf("plan is not valid JSON: %v", err)}
	}

	plan := Plan{
		ID:        uuid.NewString(),
		Query:     query,
		Task:      raw.Task,
		Reasoning: raw.Reasoning,
		CreatedAt: time.Now(),
	}
	for i, rs := range raw.Steps {
		id := rs.ID
		if id == "" {
			id = fmt.Sprintf("step_%d", i+1)
		}
		params := rs.Parameters
		if params == nil {
			params = map[string]interface{}{}
		}
		plan.Steps = append(plan.Steps, Step{
			ID:         id,
			Tool:       strings.ToLower(strings.TrimSpace(rs.Tool)),
			Function:   strings.TrimSpace(rs.Function),
			Action:     rs.Action,
			Parameters: params,
		})
	}
	return plan, nil
}

// ValidatePlan checks a plan against the capability registry.
func (p *Planner) ValidatePlan(plan Plan) error {
	if len(plan.Steps) == 0 {
		return &ValidationError{Reason: "plan has no steps"}
	}
	for _, step := range plan.Steps {
		if step.Tool == "" {
			return &ValidationError{Reason: fmt.Sprintf("step %s has no tool", step.ID)}
		}
		if !p.registry.HasTool(step.Tool) {
			return &ValidationError{Reason: fmt.Sprintf("unknown tool %q in step %s", step.Tool, step.ID)}
		}
		// a missing function is inferred at execution time
		if step.Function != "" {
			if _, ok := p.registry.Lookup(step.Tool, step.Function); !ok {
				return &ValidationError{Reason: fmt.Sprintf("unknown function %q for tool %q in step %s", step.Function, step.Tool, step.ID)}
			}
		}
	}
	return nil
}
