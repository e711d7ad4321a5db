package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/operous/opsassist/config"
	"github.com/operous/opsassist/internal/agent/telemetry"
)

// Verifier checks execution results for completeness and formats the final
// answer. It never fails: when the LLM is unreachable it degrades to
// deterministic formatting of the raw results.
type Verifier struct {
	config      *config.Config
	llmProvider LLMProvider
	telemetry   *telemetry.Telemetry
	logger      *log.Logger
}

// NewVerifier creates a new verifier instance
func NewVerifier(cfg *config.Config, llmProvider LLMProvider, tel *telemetry.Telemetry) *Verifier {
	return &Verifier{
		config:      cfg,
		llmProvider: llmProvider,
		telemetry:   tel,
		logger:      log.New(log.Writer(), "[VERIFIER] ", log.LstdFlags),
	}
}

// Verify produces the completeness verdict and formatted answer for an
// execution. Always returns a usable Verification, even with zero
// successful steps.
func (v *Verifier) Verify(ctx context.Context, query string, plan Plan, result ExecutionResult) Verification {
	verification := Verification{IsComplete: result.FailedSteps == 0 && result.SuccessfulSteps > 0}
	for _, sr := range result.StepResults {
		if !sr.Success {
			verification.FailedSteps = append(verification.FailedSteps, sr.StepID)
		}
	}

	if result.SuccessfulSteps == 0 {
		verification.IsComplete = false
		verification.FormattedAnswer = v.allFailedSummary(query, result)
		verification.MissingInfo = []string{"no tool call succeeded"}
		verification.Suggestions = []string{"check tool API keys and network connectivity", "try rephrasing the query"}
		return verification
	}

	model := v.config.LLM.Routing.Verification
	if model == "" {
		model = v.config.LLM.Routing.Fallback
	}

	prompt := v.createVerificationPrompt(query, plan, result)
	response, inTok, outTok, err := v.llmProvider.GenerateWithTokens(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.3,
		"max_tokens":  1500,
		"json":        true,
	})
	if err != nil {
		v.logger.Printf("verification LLM failed, degrading to basic formatting: %v", err)
		verification.FormattedAnswer = v.basicFormatting(result)
		return verification
	}
	v.telemetry.RecordLLMUsage("verification", model, inTok, outTok, v.llmProvider.CalculateCost(inTok, outTok, model))

	var parsed struct {
		IsComplete      bool     `json:"is_complete"`
		FormattedAnswer string   `json:"formatted_answer"`
		MissingInfo     []string `json:"missing_info"`
		Suggestions     []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(extractFirstJSON(response)), &parsed); err != nil || parsed.FormattedAnswer == "" {
		v.logger.Printf("verification response unusable, degrading to basic formatting")
		verification.FormattedAnswer = v.basicFormatting(result)
		return verification
	}

	verification.IsComplete = parsed.IsComplete && result.FailedSteps == 0
	verification.FormattedAnswer = parsed.FormattedAnswer
	verification.MissingInfo = parsed.MissingInfo
	verification.Suggestions = parsed.Suggestions
	return verification
}

func (v *Verifier) createVerificationPrompt(query string, plan Plan, result ExecutionResult) string {
	var results strings.Builder
	for _, sr := range result.StepResults {
		if sr.Success {
			data, _ := json.Marshal(sr.Data)
			if len(data) > 4000 {
				data = data[:4000]
			}
			fmt.Fprintf(&results, "- %s (%s.%s): SUCCESS\n  data: %s\n", sr.StepID, sr.Tool, sr.Function, data)
		} else {
			fmt.Fprintf(&results, "- %s (%s.%s): FAILED after %d attempts: %s\n", sr.StepID, sr.Tool, sr.Function, sr.Attempts, sr.Error)
		}
	}

	return fmt.Sprintf(`You are verifying the results of an automated task execution.

ORIGINAL QUERY: %s
TASK: %s

STEP RESULTS:
%s
Check whether the results fully answer the query, then write the final answer
for the user. Be concrete: include the actual numbers, names and titles from
the data. Mention failed steps briefly if they leave gaps.

Respond ONLY with JSON:
{
  "is_complete": true or false,
  "formatted_answer": "The complete answer for the user",
  "missing_info": ["what could not be retrieved"],
  "suggestions": ["how the user could get the missing parts"]
}`, query, plan.Task, results.String())
}

// basicFormatting renders raw step data without LLM involvement.
func (v *Verifier) basicFormatting(result ExecutionResult) string {
	var b strings.Builder
	for _, sr := range result.StepResults {
		if !sr.Success {
			fmt.Fprintf(&b, "Step %s (%s) failed: %s\n\n", sr.StepID, sr.Tool, sr.Error)
			continue
		}
		switch sr.Tool {
		case "github":
			b.WriteString(formatGitHubData(sr.Data))
		case "weather":
			b.WriteString(formatWeatherData(sr.Data))
		case "news":
			b.WriteString(formatNewsData(sr.Data))
		default:
			data, _ := json.MarshalIndent(sr.Data, "", "  ")
			b.Write(data)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func (v *Verifier) allFailedSummary(query string, result ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I could not complete your request (%q). All %d steps failed:\n", query, result.TotalSteps)
	for _, sr := range result.StepResults {
		fmt.Fprintf(&b, "- %s.%s: %s (after %d attempts)\n", sr.Tool, sr.Function, sr.Error, sr.Attempts)
	}
	return b.String()
}

func formatGitHubData(data map[string]interface{}) string {
	var b strings.Builder
	if repos, ok := data["repositories"].([]map[string]interface{}); ok {
		b.WriteString("GitHub repositories:\n")
		for _, r := range repos {
			fmt.Fprintf(&b, "- %v (%v stars): %v\n", r["full_name"], r["stars"], r["description"])
		}
		return b.String()
	}
	if repo, ok := data["repository"].(map[string]interface{}); ok {
		fmt.Fprintf(&b, "Repository %v: %v stars, %v forks, primary language %v\n",
			repo["full_name"], repo["stars"], repo["forks"], repo["primary_language"])
		return b.String()
	}
	generic, _ := json.MarshalIndent(data, "", "  ")
	return string(generic) + "\n"
}

func formatWeatherData(data map[string]interface{}) string {
	loc := ""
	if l, ok := data["location"].(map[string]interface{}); ok {
		loc = fmt.Sprintf("%v, %v", l["city"], l["country"])
	}
	return fmt.Sprintf("Weather in %s: %v, %v C (%v F), humidity %v%%\n",
		loc, data["description"], data["temperature_c"], data["temperature_f"], data["humidity_percent"])
}

func formatNewsData(data map[string]interface{}) string {
	var b strings.Builder
	if articles, ok := data["articles"].([]map[string]interface{}); ok {
		b.WriteString("News headlines:\n")
		for _, a := range articles {
			fmt.Fprintf(&b, "- %v (%v)\n", a["title"], a["source"])
		}
		return b.String()
	}
	generic, _ := json.MarshalIndent(data, "", "  ")
	return string(generic) + "\n"
}
