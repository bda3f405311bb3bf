// Package api binds the Ingest Coordinator and Query Engine to HTTP/JSON
// transport, grounded on the teacher's echo-based REST layer.
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/runledger/runledger/coordinator"
	"github.com/runledger/runledger/query"
	"github.com/runledger/runledger/storage"
)

// NewIngestServer builds the echo instance serving the write surface:
// init_run, log_metrics, log_params, log_tags, heartbeat, finish_run, plus
// the artifact presign endpoint. presigner may be nil when no artifact
// bucket is configured; the endpoint then answers 501.
func NewIngestServer(coord *coordinator.Coordinator, presigner *storage.ArtifactPresigner, apiKey string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuth(apiKey))

	h := &ingestHandlers{coord: coord, presigner: presigner}
	g := e.Group("/v1/runs")
	g.POST("", h.initRun)
	g.POST("/:run_id/metrics", h.logMetrics)
	g.POST("/:run_id/params", h.logParams)
	g.POST("/:run_id/tags", h.logTags)
	g.POST("/:run_id/heartbeat", h.heartbeat)
	g.POST("/:run_id/finish", h.finishRun)
	g.POST("/:run_id/artifacts/presign", h.presignArtifact)

	e.GET("/healthz", func(c echo.Context) error { return c.JSON(200, map[string]bool{"ok": true}) })
	return e
}

// NewQueryServer builds the echo instance serving the read surface:
// list_runs, get_run, get_metrics, compare_runs.
func NewQueryServer(engine *query.Engine, apiKey string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuth(apiKey))

	h := &queryHandlers{engine: engine}
	g := e.Group("/v1/runs")
	g.POST("/search", h.listRuns)
	g.GET("/:run_id", h.getRun)
	g.POST("/metrics", h.getMetrics)
	g.POST("/compare", h.compareRuns)

	e.GET("/healthz", func(c echo.Context) error { return c.JSON(200, map[string]bool{"ok": true}) })
	return e
}
