package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pagepress/internal/app"
	"pagepress/internal/ioformats"
	"pagepress/internal/models"
	"pagepress/internal/pipeline"
)

const (
	classifyTimeout = 30 * time.Second
	buildTimeout    = 10 * time.Minute
	maxBuildURLs    = 200
)

type classifyReq struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

type buildReq struct {
	URLs  []string `json:"urls"`
	Title string   `json:"title"`
	Send  bool     `json:"send"`
}

type handlers struct {
	deps *app.Deps
}

func newServer(deps *app.Deps) *echo.Echo {
	h := &handlers{deps: deps}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				deps.Log.Errorf("%s %s %d %s: %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
			} else {
				deps.Log.Infof("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			}
			return nil
		},
	}))

	e.GET("/health", h.health)
	e.POST("/classify", h.classify)
	e.POST("/build", h.build)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// POST /classify  { "url": "https://..." } or { "urls": [...] }
func (h *handlers) classify(c echo.Context) error {
	var req classifyReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid payload")
	}
	urls := req.URLs
	if req.URL != "" {
		urls = append([]string{req.URL}, urls...)
	}
	sources := ioformats.SourcesFromURLs(urls)
	if len(sources) == 0 {
		return errorJSON(c, http.StatusBadRequest, "url required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), classifyTimeout)
	defer cancel()
	results := h.deps.Runner(sources).Classify(ctx, sources)
	if req.URL != "" && len(req.URLs) == 0 {
		return c.JSON(http.StatusOK, results[0])
	}
	return c.JSON(http.StatusOK, results)
}

// POST /build  { "urls": [...], "title": "...", "send": false }
func (h *handlers) build(c echo.Context) error {
	var req buildReq
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid payload")
	}
	sources := ioformats.SourcesFromURLs(req.URLs)
	if len(sources) == 0 {
		return errorJSON(c, http.StatusBadRequest, "urls required")
	}
	if len(sources) > maxBuildURLs {
		return errorJSON(c, http.StatusRequestEntityTooLarge, "too many urls")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), buildTimeout)
	defer cancel()
	res, err := h.deps.Runner(sources).Run(ctx, pipeline.Request{
		Title:   strings.TrimSpace(req.Title),
		Deliver: req.Send,
	})
	if errors.Is(err, pipeline.ErrNothingToBuild) {
		return c.JSON(http.StatusUnprocessableEntity, struct {
			Error    string           `json:"error"`
			Failures []models.Failure `json:"failures,omitempty"`
		}{Error: err.Error(), Failures: res.Failures})
	}
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
