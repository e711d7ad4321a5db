package core

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/operous/opsassist/config"
)

// GitHubClient implements ToolAdapter against the GitHub REST API.
// A token is optional; unauthenticated calls work with lower rate limits.
type GitHubClient struct {
	cfg    config.GitHubConfig
	http   *HTTPClient
	logger *log.Logger
}

func NewGitHubClient(cfg config.GitHubConfig, http *HTTPClient) *GitHubClient {
	return &GitHubClient{
		cfg:    cfg,
		http:   http,
		logger: log.New(log.Writer(), "[GITHUB] ", log.LstdFlags),
	}
}

func (g *GitHubClient) Name() string { return "github" }

func (g *GitHubClient) headers() map[string]string {
	h := map[string]string{
		"Accept":     "application/vnd.github.v3+json",
		"User-Agent": "opsassist",
	}
	if g.cfg.Token != "" {
		h["Authorization"] = "token " + g.cfg.Token
	}
	return h
}

func (g *GitHubClient) Call(ctx context.Context, function string, params map[string]interface{}) (map[string]interface{}, error) {
	switch function {
	case "search_repositories":
		return g.searchRepositories(ctx, params)
	case "get_repository_details":
		return g.repositoryDetails(ctx, params)
	case "get_user_repos":
		return g.userRepos(ctx, params)
	}
	return nil, &ToolError{Tool: "github", Kind: ErrBadRequest, Err: fmt.Errorf("unknown function %q", function)}
}

type githubRepo struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	HTMLURL     string   `json:"html_url"`
	Homepage    string   `json:"homepage"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Watchers    int      `json:"watchers_count"`
	OpenIssues  int      `json:"open_issues_count"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	PushedAt    string   `json:"pushed_at"`
	Branch      string   `json:"default_branch"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	License *struct {
		Name string `json:"name"`
	} `json:"license"`
}

func (g *GitHubClient) searchRepositories(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	query := paramString(params, "query")
	if query == "" {
		return nil, &ToolError{Tool: "github", Kind: ErrBadRequest, Err: fmt.Errorf("query is required")}
	}
	limit := clampLimit(paramInt(params, "limit", 5), 100)

	var resp struct {
		TotalCount int          `json:"total_count"`
		Items      []githubRepo `json:"items"`
	}
	u := fmt.Sprintf("%s/search/repositories?q=%s&sort=stars&order=desc&per_page=%d",
		g.endpoint(), url.QueryEscape(query), limit)
	if err := g.http.DoJSON(ctx, "GET", u, g.headers(), nil, &resp); err != nil {
		return nil, g.wrap(err)
	}

	repositories := make([]map[string]interface{}, 0, len(resp.Items))
	for _, r := range resp.Items {
		repositories = append(repositories, map[string]interface{}{
			"name":        r.Name,
			"full_name":   r.FullName,
			"owner":       r.Owner.Login,
			"description": r.Description,
			"url":         r.HTMLURL,
			"stars":       r.Stars,
			"forks":       r.Forks,
			"language":    r.Language,
			"topics":      r.Topics,
			"created_at":  r.CreatedAt,
			"updated_at":  r.UpdatedAt,
			"open_issues": r.OpenIssues,
		})
	}
	return map[string]interface{}{
		"query":          query,
		"total_count":    resp.TotalCount,
		"returned_count": len(repositories),
		"repositories":   repositories,
	}, nil
}

func (g *GitHubClient) repositoryDetails(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	owner := paramString(params, "owner")
	repo := paramString(params, "repo")
	if owner == "" || repo == "" {
		return nil, &ToolError{Tool: "github", Kind: ErrBadRequest, Err: fmt.Errorf("owner and repo are required")}
	}

	var details githubRepo
	base := fmt.Sprintf("%s/repos/%s/%s", g.endpoint(), url.PathEscape(owner), url.PathEscape(repo))
	if err := g.http.DoJSON(ctx, "GET", base, g.headers(), nil, &details); err != nil {
		return nil, g.wrap(err)
	}

	// languages and contributors are supplementary; failures there do not
	// fail the step
	languages := map[string]int{}
	if err := g.http.DoJSON(ctx, "GET", base+"/languages", g.headers(), nil, &languages); err != nil {
		g.logger.Printf("languages lookup for %s/%s failed: %v", owner, repo, err)
	}
	var contributors []struct {
		Login         string `json:"login"`
		Contributions int    `json:"contributions"`
	}
	if err := g.http.DoJSON(ctx, "GET", base+"/contributors?per_page=5", g.headers(), nil, &contributors); err != nil {
		g.logger.Printf("contributors lookup for %s/%s failed: %v", owner, repo, err)
	}
	top := make([]map[string]interface{}, 0, len(contributors))
	for _, c := range contributors {
		top = append(top, map[string]interface{}{
			"username":      c.Login,
			"contributions": c.Contributions,
		})
	}

	var license interface{}
	if details.License != nil {
		license = details.License.Name
	}
	return map[string]interface{}{
		"repository": map[string]interface{}{
			"name":             details.Name,
			"full_name":        details.FullName,
			"owner":            details.Owner.Login,
			"description":      details.Description,
			"url":              details.HTMLURL,
			"homepage":         details.Homepage,
			"stars":            details.Stars,
			"forks":            details.Forks,
			"watchers":         details.Watchers,
			"open_issues":      details.OpenIssues,
			"primary_language": details.Language,
			"languages":        languages,
			"topics":           details.Topics,
			"license":          license,
			"created_at":       details.CreatedAt,
			"updated_at":       details.UpdatedAt,
			"pushed_at":        details.PushedAt,
			"default_branch":   details.Branch,
			"is_fork":          details.Fork,
			"is_archived":      details.Archived,
			"top_contributors": top,
		},
	}, nil
}

func (g *GitHubClient) userRepos(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	username := paramString(params, "username")
	if username == "" {
		return nil, &ToolError{Tool: "github", Kind: ErrBadRequest, Err: fmt.Errorf("username is required")}
	}
	limit := clampLimit(paramInt(params, "limit", 10), 100)

	var user struct {
		Login       string `json:"login"`
		Name        string `json:"name"`
		Bio         string `json:"bio"`
		PublicRepos int    `json:"public_repos"`
		Followers   int    `json:"followers"`
		Following   int    `json:"following"`
		HTMLURL     string `json:"html_url"`
	}
	userURL := fmt.Sprintf("%s/users/%s", g.endpoint(), url.PathEscape(username))
	if err := g.http.DoJSON(ctx, "GET", userURL, g.headers(), nil, &user); err != nil {
		return nil, g.wrap(err)
	}

	var repos []githubRepo
	reposURL := fmt.Sprintf("%s/repos?sort=updated&direction=desc&per_page=%d", userURL, limit)
	if err := g.http.DoJSON(ctx, "GET", reposURL, g.headers(), nil, &repos); err != nil {
		return nil, g.wrap(err)
	}

	repositories := make([]map[string]interface{}, 0, len(repos))
	for _, r := range repos {
		repositories = append(repositories, map[string]interface{}{
			"name":        r.Name,
			"full_name":   r.FullName,
			"description": r.Description,
			"url":         r.HTMLURL,
			"stars":       r.Stars,
			"forks":       r.Forks,
			"language":    r.Language,
			"updated_at":  r.UpdatedAt,
		})
	}
	return map[string]interface{}{
		"user": map[string]interface{}{
			"username":     user.Login,
			"name":         user.Name,
			"bio":          user.Bio,
			"public_repos": user.PublicRepos,
			"followers":    user.Followers,
			"following":    user.Following,
			"profile_url":  user.HTMLURL,
		},
		"repositories":   repositories,
		"returned_count": len(repositories),
	}, nil
}

func (g *GitHubClient) endpoint() string {
	if g.cfg.Endpoint != "" {
		return g.cfg.Endpoint
	}
	return "https://api.github.com"
}

func (g *GitHubClient) wrap(err error) error {
	return &ToolError{Tool: "github", Kind: ClassifyHTTPError(err), Err: err}
}

// WeatherClient implements ToolAdapter against the OpenWeatherMap API.
type WeatherClient struct {
	cfg  config.WeatherConfig
	http *HTTPClient
}

func NewWeatherClient(cfg config.WeatherConfig, http *HTTPClient) *WeatherClient {
	return &WeatherClient{cfg: cfg, http: http}
}

func (w *WeatherClient) Name() string { return "weather" }

func (w *WeatherClient) Call(ctx context.Context, function string, params map[string]interface{}) (map[string]interface{}, error) {
	units := w.units(params)
	switch function {
	case "get_current_weather":
		city := paramString(params, "city")
		if city == "" {
			return nil, &ToolError{Tool: "weather", Kind: ErrBadRequest, Err: fmt.Errorf("city is required")}
		}
		return w.fetch(ctx, "q="+url.QueryEscape(city), units)
	case "get_weather_by_coordinates":
		lat, latOK := paramFloat(params, "lat")
		lon, lonOK := paramFloat(params, "lon")
		if !latOK || !lonOK {
			return nil, &ToolError{Tool: "weather", Kind: ErrBadRequest, Err: fmt.Errorf("lat and lon are required")}
		}
		return w.fetch(ctx, fmt.Sprintf("lat=%g&lon=%g", lat, lon), units)
	}
	return nil, &ToolError{Tool: "weather", Kind: ErrBadRequest, Err: fmt.Errorf("unknown function %q", function)}
}

// units resolves the effective units for a call: the step parameter wins
// over the configured default. Unknown values fall back to metric.
func (w *WeatherClient) units(params map[string]interface{}) string {
	units := paramString(params, "units")
	if units == "" {
		units = w.cfg.Units
	}
	switch units {
	case "metric", "imperial":
		return units
	}
	return "metric"
}

func (w *WeatherClient) fetch(ctx context.Context, locationQuery, units string) (map[string]interface{}, error) {
	var resp struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Coord struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			TempMin   float64 `json:"temp_min"`
			TempMax   float64 `json:"temp_max"`
			Pressure  int     `json:"pressure"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
			Deg   int     `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All int `json:"all"`
		} `json:"clouds"`
	}

	endpoint := w.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openweathermap.org/data/2.5"
	}
	u := fmt.Sprintf("%s/weather?%s&units=%s&appid=%s", endpoint, locationQuery, units, w.cfg.APIKey)
	if err := w.http.DoJSON(ctx, "GET", u, nil, nil, &resp); err != nil {
		return nil, &ToolError{Tool: "weather", Kind: ClassifyHTTPError(err), Err: err}
	}

	condition, description := "", ""
	if len(resp.Weather) > 0 {
		condition = resp.Weather[0].Main
		description = resp.Weather[0].Description
	}
	tempC, feelsC := resp.Main.Temp, resp.Main.FeelsLike
	if units == "imperial" {
		tempC = (resp.Main.Temp - 32) * 5 / 9
		feelsC = (resp.Main.FeelsLike - 32) * 5 / 9
	}
	return map[string]interface{}{
		"location": map[string]interface{}{
			"city":    resp.Name,
			"country": resp.Sys.Country,
			"lat":     resp.Coord.Lat,
			"lon":     resp.Coord.Lon,
		},
		"condition":          condition,
		"description":        description,
		"temperature_c":      round1(tempC),
		"temperature_f":      round1(tempC*9/5 + 32),
		"feels_like_c":       round1(feelsC),
		"feels_like_f":       round1(feelsC*9/5 + 32),
		"humidity_percent":   resp.Main.Humidity,
		"pressure_hpa":       resp.Main.Pressure,
		"wind_speed":         resp.Wind.Speed,
		"wind_direction_deg": resp.Wind.Deg,
		"cloud_cover":        resp.Clouds.All,
	}, nil
}

// NewsClient implements ToolAdapter against the NewsAPI v2 endpoints.
type NewsClient struct {
	cfg  config.NewsConfig
	http *HTTPClient
}

func NewNewsClient(cfg config.NewsConfig, http *HTTPClient) *NewsClient {
	return &NewsClient{cfg: cfg, http: http}
}

func (n *NewsClient) Name() string { return "news" }

type newsResponse struct {
	Status       string `json:"status"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

func (n *NewsClient) Call(ctx context.Context, function string, params map[string]interface{}) (map[string]interface{}, error) {
	endpoint := n.cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://newsapi.org/v2"
	}
	limit := clampLimit(paramInt(params, "limit", defaultLimit(n.cfg.MaxResults)), 100)

	var u string
	switch function {
	case "search_news":
		query := paramString(params, "query")
		if query == "" {
			return nil, &ToolError{Tool: "news", Kind: ErrBadRequest, Err: fmt.Errorf("query is required")}
		}
		sortBy := paramString(params, "sort_by")
		if sortBy == "" {
			sortBy = "publishedAt"
		}
		u = fmt.Sprintf("%s/everything?q=%s&language=en&sortBy=%s&pageSize=%d",
			endpoint, url.QueryEscape(query), url.QueryEscape(sortBy), limit)
	case "get_top_headlines":
		v := url.Values{}
		if category := paramString(params, "category"); category != "" {
			v.Set("category", category)
		}
		country := paramString(params, "country")
		if country == "" {
			country = "us"
		}
		v.Set("country", country)
		v.Set("pageSize", fmt.Sprint(limit))
		u = fmt.Sprintf("%s/top-headlines?%s", endpoint, v.Encode())
	default:
		return nil, &ToolError{Tool: "news", Kind: ErrBadRequest, Err: fmt.Errorf("unknown function %q", function)}
	}

	var resp newsResponse
	headers := map[string]string{"X-Api-Key": n.cfg.APIKey}
	if err := n.http.DoJSON(ctx, "GET", u, headers, nil, &resp); err != nil {
		return nil, &ToolError{Tool: "news", Kind: ClassifyHTTPError(err), Err: err}
	}

	articles := make([]map[string]interface{}, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, map[string]interface{}{
			"title":        a.Title,
			"description":  a.Description,
			"source":       a.Source.Name,
			"author":       a.Author,
			"url":          a.URL,
			"published_at": a.PublishedAt,
		})
	}
	return map[string]interface{}{
		"total_results":  resp.TotalResults,
		"returned_count": len(articles),
		"articles":       articles,
	}, nil
}

func paramString(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func paramInt(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func paramFloat(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func clampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}

func defaultLimit(configured int) int {
	if configured > 0 {
		return configured
	}
	return 20
}

func round1(f float64) float64 {
	if f >= 0 {
		return float64(int(f*10+0.5)) / 10
	}
	return float64(int(f*10-0.5)) / 10
}
