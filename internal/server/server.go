package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/operous/opsassist/config"
	agentcore "github.com/operous/opsassist/internal/agent/core"
	"github.com/operous/opsassist/internal/runtime"
)

// NewRouter builds the echo instance with all routes registered.
func NewRouter(cfg *config.Config, pipeline Pipeline) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	if cfg.Server.JWTSecret != "" {
		api.Use(runtime.EchoAuthMiddleware([]byte(cfg.Server.JWTSecret)))
	}
	qh := &QueryHandler{Pipeline: pipeline}
	qh.Register(api)

	return e
}

// Run starts the HTTP server on the configured address.
func Run(cfg *config.Config, addr string) error {
	orch, err := agentcore.NewOrchestrator(cfg)
	if err != nil {
		return err
	}

	e := NewRouter(cfg, orch)

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":8080"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
