package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/agent/telemetry"
	"github.com/operous/opsassist/internal/capability"
)

// Executor runs plan steps strictly in order, tolerating per-step failure.
type Executor struct {
	config    config.ExecutorConfig
	adapters  map[string]ToolAdapter
	registry  *capability.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewExecutor creates a new executor instance
func NewExecutor(cfg config.ExecutorConfig, adapters []ToolAdapter, registry *capability.Registry, tel *telemetry.Telemetry) *Executor {
	byName := make(map[string]ToolAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Executor{
		config:    cfg,
		adapters:  byName,
		registry:  registry,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags),
	}
}

// Execute runs every step of the plan and returns exactly one StepResult
// per step, in plan order. A step that exhausts its retries is recorded as
// failed and execution continues with the next step.
func (e *Executor) Execute(ctx context.Context, plan Plan) ExecutionResult {
	startTime := time.Now()

	result := ExecutionResult{TotalSteps: len(plan.Steps)}
	toolsUsed := make(map[string]struct{})

	for _, step := range plan.Steps {
		sr := e.executeStep(ctx, step)
		result.StepResults = append(result.StepResults, sr)
		toolsUsed[sr.Tool] = struct{}{}
		if sr.Success {
			result.SuccessfulSteps++
		} else {
			result.FailedSteps++
		}
	}

	for t := range toolsUsed {
		result.ToolsUsed = append(result.ToolsUsed, t)
	}
	sort.Strings(result.ToolsUsed)
	result.ExecutionTime = time.Since(startTime)

	e.logger.Printf("executed %d steps (%d ok, %d failed) in %v",
		result.TotalSteps, result.SuccessfulSteps, result.FailedSteps, result.ExecutionTime)
	return result
}

func (e *Executor) executeStep(ctx context.Context, step Step) StepResult {
	stepStart := time.Now()

	function := step.Function
	if function == "" {
		function = e.inferFunction(step)
	}
	sr := StepResult{
		StepID:   step.ID,
		Tool:     step.Tool,
		Function: function,
		Action:   step.Action,
	}

	adapter, ok := e.adapters[step.Tool]
	if !ok {
		sr.Error = fmt.Sprintf("tool %q is not available", step.Tool)
		sr.Attempts = 1
		return sr
	}

	params := e.cleanParameters(step.Tool, function, step.Parameters)

	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		sr.Attempts = attempt

		data, err := adapter.Call(ctx, function, params)
		if err == nil {
			sr.Success = true
			sr.Data = data
			break
		}
		lastErr = err
		e.logger.Printf("step %s attempt %d/%d failed: %v", step.ID, attempt, e.config.MaxRetries, err)

		var te *ToolError
		if errors.As(err, &te) {
			e.telemetry.RecordToolError(step.Tool, string(te.Kind))
			if !te.Retryable() {
				break
			}
		}
		if attempt < e.config.MaxRetries {
			select {
			case <-time.After(e.config.RetryDelay):
			case <-ctx.Done():
				sr.Error = ctx.Err().Error()
				e.recordStep(sr, stepStart)
				return sr
			}
		}
	}
	if !sr.Success && lastErr != nil {
		sr.Error = lastErr.Error()
	}
	e.recordStep(sr, stepStart)
	return sr
}

func (e *Executor) recordStep(sr StepResult, start time.Time) {
	e.telemetry.RecordStepEvent(telemetry.StepEvent{
		StepID:   sr.StepID,
		Tool:     sr.Tool,
		Function: sr.Function,
		Success:  sr.Success,
		Attempts: sr.Attempts,
		Duration: time.Since(start),
	})
}

// inferFunction picks a sensible function when the plan omitted one,
// based on the parameters present and the step's action wording.
func (e *Executor) inferFunction(step Step) string {
	switch step.Tool {
	case "github":
		_, hasOwner := step.Parameters["owner"]
		_, hasRepo := step.Parameters["repo"]
		if hasOwner && hasRepo {
			return "get_repository_details"
		}
		if _, ok := step.Parameters["username"]; ok {
			return "get_user_repos"
		}
		return "search_repositories"
	case "weather":
		_, hasLat := step.Parameters["lat"]
		_, hasLon := step.Parameters["lon"]
		if hasLat && hasLon {
			return "get_weather_by_coordinates"
		}
		return "get_current_weather"
	case "news":
		action := strings.ToLower(step.Action)
		if strings.Contains(action, "headline") || strings.Contains(action, "top") {
			return "get_top_headlines"
		}
		return "search_news"
	}
	return step.Function
}

// cleanParameters drops parameters the function does not declare and
// coerces string-typed numerics the LLM tends to produce.
func (e *Executor) cleanParameters(tool, function string, params map[string]interface{}) map[string]interface{} {
	card, ok := e.registry.Lookup(tool, function)
	if !ok {
		return params
	}
	allowed := make(map[string]struct{}, len(card.Parameters))
	for _, p := range card.Parameters {
		allowed[p] = struct{}{}
	}

	cleaned := make(map[string]interface{}, len(params))
	for key, value := range params {
		if _, ok := allowed[key]; !ok {
			continue
		}
		switch key {
		case "limit":
			cleaned[key] = coerceInt(value)
		case "lat", "lon":
			if f, ok := coerceFloat(value); ok {
				cleaned[key] = f
			}
		default:
			cleaned[key] = value
		}
	}
	return cleaned
}

func coerceInt(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return v
}

func coerceFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
