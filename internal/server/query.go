package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	agentcore "github.com/operous/opsassist/internal/agent/core"
	"github.com/operous/opsassist/internal/capability"
)

// Pipeline is the query processing surface the HTTP handlers need.
// *agentcore.Orchestrator satisfies it.
type Pipeline interface {
	ValidateQuery(query string) error
	ProcessQuery(ctx context.Context, query string) (agentcore.FinalResponse, error)
	Plan(ctx context.Context, query string) (agentcore.Plan, error)
	Registry() *capability.Registry
}

// QueryHandler serves the pipeline endpoints.
type QueryHandler struct {
	Pipeline Pipeline
}

func (h *QueryHandler) Register(g *echo.Group) {
	g.POST("/query", h.handleQuery)
	g.POST("/plan", h.handlePlan)
	g.GET("/tools", h.handleTools)
}

func (h *QueryHandler) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.Pipeline.ValidateQuery(req.Query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response, err := h.Pipeline.ProcessQuery(c.Request().Context(), req.Query)
	if err != nil {
		var ve *agentcore.ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, ve.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, response)
}

func (h *QueryHandler) handlePlan(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.Pipeline.ValidateQuery(req.Query); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	plan, err := h.Pipeline.Plan(c.Request().Context(), req.Query)
	if err != nil {
		var ve *agentcore.ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, ve.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *QueryHandler) handleTools(c echo.Context) error {
	reg := h.Pipeline.Registry()
	resp := ToolsResponse{Tools: make(map[string][]ToolFunction)}
	for _, tool := range reg.Tools() {
		for _, card := range reg.Functions(tool) {
			resp.Tools[tool] = append(resp.Tools[tool], ToolFunction{
				Function:    card.Function,
				Description: card.Description,
				Parameters:  card.Parameters,
				Required:    card.Required,
			})
		}
	}
	return c.JSON(http.StatusOK, resp)
}
