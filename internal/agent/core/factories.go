package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/operous/opsassist/config"
)

// NewLLMProvider creates an LLM provider based on configuration. groq is
// OpenAI-compatible; only the base URL and key env var differ.
func NewLLMProvider(cfg config.LLMConfig) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		provider := cfg.Providers[name]
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider, "openai"), nil
		case "groq":
			if provider.BaseURL == "" {
				provider.BaseURL = "https://api.groq.com/openai/v1"
			}
			return NewOpenAIProvider(provider, "groq"), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// NewToolAdapters builds the adapter set from configuration. A tool whose
// key is missing is skipped, not fatal: the registry simply never offers it.
func NewToolAdapters(cfg config.ToolsConfig, timeout time.Duration) []ToolAdapter {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	// executor owns per-step retries, so the shared client retries nothing
	httpc := NewHTTPClient(timeout, 0, 0)

	var adapters []ToolAdapter
	if cfg.GitHub.Enabled {
		adapters = append(adapters, NewGitHubClient(cfg.GitHub, httpc))
	}
	if cfg.Weather.APIKey != "" {
		adapters = append(adapters, NewWeatherClient(cfg.Weather, httpc))
	}
	if cfg.News.APIKey != "" {
		adapters = append(adapters, NewNewsClient(cfg.News, httpc))
	}
	return adapters
}

// OpenAIProvider implements LLMProvider over the chat-completions API.
type OpenAIProvider struct {
	config       config.LLMProvider
	providerName string
	models       map[string]ModelInfo
	rawModels    map[string]config.LLMModel
	client       *http.Client
}

func NewOpenAIProvider(cfg config.LLMProvider, providerName string) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	provider := &OpenAIProvider{
		config:       cfg,
		providerName: providerName,
		models:       make(map[string]ModelInfo),
		rawModels:    cfg.Models,
		client:       &http.Client{Timeout: timeout},
	}

	for key, model := range cfg.Models {
		provider.models[key] = ModelInfo{
			Name:            model.Name,
			Provider:        providerName,
			MaxTokens:       model.MaxTokens,
			CostPer1KInput:  model.CostPer1K,
			CostPer1KOutput: model.CostPer1KOutput,
			Description:     fmt.Sprintf("%s %s model", providerName, model.Name),
		}
	}
	return provider
}

// Generate generates text for a prompt
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := p.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

// GenerateWithTokens generates text and returns token usage
func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		switch p.providerName {
		case "groq":
			apiKey = os.Getenv("GROQ_API_KEY")
		default:
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if apiKey == "" {
		return "", 0, 0, fmt.Errorf("%s API key not configured", p.providerName)
	}

	m, ok := p.rawModels[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}

	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model          string          `json:"model"`
		Messages       []chatMsg       `json:"messages"`
		Temperature    float64         `json:"temperature,omitempty"`
		MaxTokens      int             `json:"max_tokens,omitempty"`
		ResponseFormat json.RawMessage `json:"response_format,omitempty"`
	}

	reqBody := chatReq{
		Model:       apiModel,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if jm, ok := options["json"].(bool); ok && jm {
		reqBody.ResponseFormat = json.RawMessage(`{"type":"json_object"}`)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, fmt.Errorf("%s status %d", p.providerName, resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices")
	}
	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

// GetAvailableModels returns configured model names
func (p *OpenAIProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.models {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}

// GetModelInfo returns information about a specific model
func (p *OpenAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the dollar cost for a token count
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * info.CostPer1KOutput
	return inputCost + outputCost
}

// extractFirstJSON attempts to find the first top-level JSON object in a string
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	for i, ch := range s {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return s
}
