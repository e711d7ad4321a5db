package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/operous/opsassist/config"
)

// Collectors are package-level so repeated Telemetry construction (tests,
// CLI one-shots) never double-registers with the default registry.
var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsassist_queries_total",
		Help: "Processed queries by outcome.",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opsassist_query_duration_seconds",
		Help:    "End-to-end pipeline duration.",
		Buckets: prometheus.DefBuckets,
	})

	stepAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsassist_step_attempts_total",
		Help: "Tool invocation attempts by tool and outcome.",
	}, []string{"tool", "outcome"})

	toolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsassist_tool_errors_total",
		Help: "Adapter errors by tool and error kind.",
	}, []string{"tool", "kind"})

	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opsassist_llm_tokens_total",
		Help: "LLM tokens consumed by model and direction.",
	}, []string{"model", "direction"})
)

// Telemetry provides monitoring and cost tracking for the pipeline
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	costTracker *CostTracker
}

// CostTracker tracks LLM costs across models and operations
type CostTracker struct {
	mu sync.RWMutex

	OperationCosts map[string]float64 // operation -> cost
	ModelCosts     map[string]float64 // model -> cost

	TotalCost   float64
	TotalTokens int64
}

// QueryEvent represents a single processed query
type QueryEvent struct {
	ID             string
	Query          string
	StartTime      time.Time
	EndTime        time.Time
	ProcessingTime time.Duration
	Success        bool
	Error          string
	Cost           float64
	TokensUsed     int64
	ToolsUsed      []string
}

// StepEvent represents one executed plan step
type StepEvent struct {
	StepID   string
	Tool     string
	Function string
	Success  bool
	Attempts int
	Duration time.Duration
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costTracker: &CostTracker{
			OperationCosts: make(map[string]float64),
			ModelCosts:     make(map[string]float64),
		},
	}
}

// RecordQueryEvent records the outcome of a full pipeline run
func (t *Telemetry) RecordQueryEvent(event QueryEvent) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDuration.Observe(event.ProcessingTime.Seconds())

	if t.config.CostTracking && event.Cost > 0 {
		t.costTracker.mu.Lock()
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.TokensUsed
		t.costTracker.mu.Unlock()
	}
	t.logger.Printf("query %s finished in %v (success=%v, tools=%v)",
		event.ID, event.ProcessingTime, event.Success, event.ToolsUsed)
}

// RecordStepEvent records one plan step execution
func (t *Telemetry) RecordStepEvent(event StepEvent) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	stepAttemptsTotal.WithLabelValues(event.Tool, outcome).Add(float64(event.Attempts))
}

// RecordToolError records an adapter error by kind
func (t *Telemetry) RecordToolError(tool, kind string) {
	if !t.config.Enabled {
		return
	}
	toolErrorsTotal.WithLabelValues(tool, kind).Inc()
}

// RecordLLMUsage records token usage and cost for one LLM call
func (t *Telemetry) RecordLLMUsage(operation, model string, inputTokens, outputTokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	llmTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	llmTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))

	if t.config.CostTracking {
		t.costTracker.mu.Lock()
		t.costTracker.OperationCosts[operation] += cost
		t.costTracker.ModelCosts[model] += cost
		t.costTracker.TotalCost += cost
		t.costTracker.TotalTokens += inputTokens + outputTokens
		t.costTracker.mu.Unlock()
	}
}

// TotalCost returns the accumulated LLM cost in dollars
func (t *Telemetry) TotalCost() float64 {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	return t.costTracker.TotalCost
}

// TotalTokens returns the accumulated token count
func (t *Telemetry) TotalTokens() int64 {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	return t.costTracker.TotalTokens
}

// CostByModel returns a copy of the per-model cost map
func (t *Telemetry) CostByModel() map[string]float64 {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	out := make(map[string]float64, len(t.costTracker.ModelCosts))
	for k, v := range t.costTracker.ModelCosts {
		out[k] = v
	}
	return out
}
