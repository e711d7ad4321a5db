package core

import (
	"context"
	"fmt"
	"time"
)

// Plan is the validated output of the planner. Immutable once validated.
type Plan struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Task      string    `json:"task"`
	Steps     []Step    `json:"steps"`
	Reasoning string    `json:"reasoning,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Step is one tool invocation in a plan.
type Step struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Function   string                 `json:"function,omitempty"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// StepResult records the outcome of executing one step.
type StepResult struct {
	StepID   string                 `json:"step_id"`
	Tool     string                 `json:"tool"`
	Function string                 `json:"function"`
	Action   string                 `json:"action"`
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Attempts int                    `json:"attempts"`
}

// ExecutionResult aggregates the step results of one plan run.
type ExecutionResult struct {
	StepResults     []StepResult  `json:"step_results"`
	TotalSteps      int           `json:"total_steps"`
	SuccessfulSteps int           `json:"successful_steps"`
	FailedSteps     int           `json:"failed_steps"`
	ToolsUsed       []string      `json:"tools_used"`
	ExecutionTime   time.Duration `json:"execution_time"`
}

// Verification is the verifier's verdict on an execution.
type Verification struct {
	IsComplete      bool     `json:"is_complete"`
	FormattedAnswer string   `json:"formatted_answer"`
	MissingInfo     []string `json:"missing_info,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	FailedSteps     []string `json:"failed_steps,omitempty"`
}

// ExecutionMetadata is the summary block returned alongside a final answer.
type ExecutionMetadata struct {
	StepsExecuted   int      `json:"steps_executed"`
	SuccessfulSteps int      `json:"successful_steps"`
	FailedSteps     int      `json:"failed_steps"`
	ToolsUsed       []string `json:"tools_used"`
	ExecutionTime   float64  `json:"execution_time_seconds"`
}

// FinalResponse is the complete pipeline output for one query.
type FinalResponse struct {
	Success     bool              `json:"success"`
	Query       string            `json:"query"`
	Plan        *Plan             `json:"plan,omitempty"`
	StepResults []StepResult      `json:"step_results"`
	FinalAnswer string            `json:"final_answer"`
	Metadata    ExecutionMetadata `json:"metadata"`
}

// ModelInfo describes a configured LLM model.
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
	Description     string  `json:"description"`
}

// LLMProvider abstracts a chat-completion backend.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
	GetAvailableModels() []string
	GetModelInfo(model string) (ModelInfo, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ToolAdapter is the uniform contract every external tool implements.
type ToolAdapter interface {
	Name() string
	Call(ctx context.Context, function string, params map[string]interface{}) (map[string]interface{}, error)
}

// ValidationError marks a plan that failed structural validation.
// It is surfaced to the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: %s", e.Reason)
}

// ErrorKind classifies adapter failures for retry decisions and metrics.
type ErrorKind string

const (
	ErrAuth       ErrorKind = "auth"
	ErrRateLimit  ErrorKind = "rate_limit"
	ErrNotFound   ErrorKind = "not_found"
	ErrNetwork    ErrorKind = "network"
	ErrBadRequest ErrorKind = "bad_request"
)

// ToolError is an adapter failure with a classified kind.
type ToolError struct {
	Tool string
	Kind ErrorKind
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Retryable reports whether a retry could plausibly change the outcome.
// Missing resources and malformed requests fail the same way every time.
func (e *ToolError) Retryable() bool {
	return e.Kind != ErrNotFound && e.Kind != ErrBadRequest
}
