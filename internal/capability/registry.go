package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ToolCard represents registry metadata for one callable tool function.
type ToolCard struct {
	Tool         string   `json:"tool"`
	Function     string   `json:"function"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Parameters   []string `json:"parameters"`
	Required     []string `json:"required,omitempty"`
	CostEstimate float64  `json:"cost_estimate,omitempty"`
	SideEffects  []string `json:"side_effects,omitempty"`
	Checksum     string   `json:"checksum,omitempty"`
	Signature    string   `json:"signature,omitempty"`
}

// Key identifies the card within the registry.
func (tc ToolCard) Key() string {
	return tc.Tool + "." + tc.Function
}

// GitHubToolCards returns the card set for the GitHub adapter.
func GitHubToolCards() []ToolCard {
	return []ToolCard{
		{Tool: "github", Function: "search_repositories", Version: "v1",
			Description: "Search GitHub repositories by keyword, sorted by stars",
			Parameters:  []string{"query", "limit"}, Required: []string{"query"},
			SideEffects: []string{"network"}},
		{Tool: "github", Function: "get_repository_details", Version: "v1",
			Description: "Get detailed information about a specific repository",
			Parameters:  []string{"owner", "repo"}, Required: []string{"owner", "repo"},
			SideEffects: []string{"network"}},
		{Tool: "github", Function: "get_user_repos", Version: "v1",
			Description: "List public repositories for a GitHub user",
			Parameters:  []string{"username", "limit"}, Required: []string{"username"},
			SideEffects: []string{"network"}},
	}
}

// WeatherToolCards returns the card set for the weather adapter.
func WeatherToolCards() []ToolCard {
	return []ToolCard{
		{Tool: "weather", Function: "get_current_weather", Version: "v1",
			Description: "Get current weather conditions for a city",
			Parameters:  []string{"city", "units"}, Required: []string{"city"},
			SideEffects: []string{"network"}},
		{Tool: "weather", Function: "get_weather_by_coordinates", Version: "v1",
			Description: "Get current weather conditions for latitude/longitude coordinates",
			Parameters:  []string{"lat", "lon", "units"}, Required: []string{"lat", "lon"},
			SideEffects: []string{"network"}},
	}
}

// NewsToolCards returns the card set for the news adapter.
func NewsToolCards() []ToolCard {
	return []ToolCard{
		{Tool: "news", Function: "search_news", Version: "v1",
			Description: "Search news articles by keyword",
			Parameters:  []string{"query", "limit", "sort_by"}, Required: []string{"query"},
			SideEffects: []string{"network"}},
		{Tool: "news", Function: "get_top_headlines", Version: "v1",
			Description: "Get top headlines, optionally filtered by category and country",
			Parameters:  []string{"category", "country", "limit"},
			SideEffects: []string{"network"}},
	}
}

// Registry holds validated ToolCards keyed by tool.function.
type Registry struct {
	cards map[string]ToolCard
}

// ErrNoTools indicates the registry would be empty.
var ErrNoTools = fmt.Errorf("no tools registered")

// NewRegistry validates card signatures and builds the lookup table.
// With an empty signing secret signature validation is skipped.
func NewRegistry(cards []ToolCard, signingSecret string) (*Registry, error) {
	if len(cards) == 0 {
		return nil, ErrNoTools
	}
	reg := &Registry{cards: make(map[string]ToolCard)}
	for _, tc := range cards {
		if err := validateSignature(tc, signingSecret); err != nil {
			return nil, fmt.Errorf("tool %s@%s signature invalid: %w", tc.Key(), tc.Version, err)
		}
		existing, ok := reg.cards[tc.Key()]
		if !ok || versionGreater(tc.Version, existing.Version) {
			reg.cards[tc.Key()] = tc
		}
	}
	return reg, nil
}

// Lookup returns the card for a tool function.
func (r *Registry) Lookup(tool, function string) (ToolCard, bool) {
	if r == nil {
		return ToolCard{}, false
	}
	tc, ok := r.cards[tool+"."+function]
	return tc, ok
}

// HasTool reports whether any function of the named tool is registered.
func (r *Registry) HasTool(tool string) bool {
	if r == nil {
		return false
	}
	for _, tc := range r.cards {
		if tc.Tool == tool {
			return true
		}
	}
	return false
}

// Tools returns registered tool names, sorted.
func (r *Registry) Tools() []string {
	seen := make(map[string]struct{})
	for _, tc := range r.cards {
		seen[tc.Tool] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Functions returns the cards for one tool, sorted by function name.
func (r *Registry) Functions(tool string) []ToolCard {
	var out []ToolCard
	for _, tc := range r.cards {
		if tc.Tool == tool {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function < out[j].Function })
	return out
}

// Cards returns all registered cards sorted by key.
func (r *Registry) Cards() []ToolCard {
	out := make([]ToolCard, 0, len(r.cards))
	for _, tc := range r.cards {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ComputeChecksum returns a deterministic hash of the ToolCard payload (excluding signature field).
func ComputeChecksum(tc ToolCard) (string, error) {
	payload := map[string]interface{}{
		"tool":          tc.Tool,
		"function":      tc.Function,
		"version":       tc.Version,
		"description":   tc.Description,
		"parameters":    tc.Parameters,
		"required":      tc.Required,
		"cost_estimate": tc.CostEstimate,
		"side_effects":  tc.SideEffects,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignToolCard computes an HMAC signature using the signing secret.
func SignToolCard(tc ToolCard, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(tc)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func validateSignature(tc ToolCard, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignToolCard(tc, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(tc.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func versionGreater(a, b string) bool {
	if a == b {
		return false
	}
	// naive semver compare
	return intsCompare(splitVersion(a), splitVersion(b)) > 0
}

func splitVersion(v string) []int {
	parts := strings.Split(strings.TrimPrefix(v, "v"), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}

func intsCompare(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ai, bi := 0, 0
		if i < len(a) {
			ai = a[i]
		}
		if i < len(b) {
			bi = b[i]
		}
		if ai > bi {
			return 1
		}
		if ai < bi {
			return -1
		}
	}
	return 0
}
