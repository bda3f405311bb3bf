package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/runledger/runledger/coordinator"
	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/storage"
)

// ingestHandlers binds the ingest surface (§6) to HTTP/JSON.
type ingestHandlers struct {
	coord     *coordinator.Coordinator
	presigner *storage.ArtifactPresigner
}

type initRunRequest struct {
	Project     string            `json:"project"`
	RunID       string            `json:"run_id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	ResumeToken string            `json:"resume_token,omitempty"`
}

type initRunResponse struct {
	RunID       string `json:"run_id"`
	ResumeToken string `json:"resume_token"`
	Resumed     bool   `json:"resumed"`
}

func (h *ingestHandlers) initRun(c echo.Context) error {
	var req initRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.coord.InitRun(c.Request().Context(), req.Project, req.RunID, req.Name, req.Tags, req.ResumeToken)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, initRunResponse{RunID: result.RunID, ResumeToken: result.ResumeToken, Resumed: result.Resumed})
}

type metricPointRequest struct {
	Name      string  `json:"name"`
	Step      int64   `json:"step"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp_ms"`
}

type logMetricsRequest struct {
	BatchID  string               `json:"batch_id"`
	Points   []metricPointRequest `json:"points"`
	Sequence *int64               `json:"sequence,omitempty"`
}

type warningResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type logMetricsResponse struct {
	AcceptedCount     int               `json:"accepted_count"`
	DeduplicatedCount int               `json:"deduplicated_count"`
	Warnings          []warningResponse `json:"warnings"`
}

func (h *ingestHandlers) logMetrics(c echo.Context) error {
	runID := c.Param("run_id")
	var req logMetricsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inputs := make([]coordinator.MetricInput, len(req.Points))
	for i, p := range req.Points {
		inputs[i] = coordinator.MetricInput{Name: p.Name, Step: p.Step, Value: p.Value, Timestamp: time.UnixMilli(p.Timestamp)}
	}
	result, err := h.coord.LogMetrics(c.Request().Context(), runID, req.BatchID, inputs, req.Sequence)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, logMetricsResponse{
		AcceptedCount:     result.AcceptedCount,
		DeduplicatedCount: result.DeduplicatedCount,
		Warnings:          toWarningResponses(result.Warnings),
	})
}

type paramRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type logParamsRequest struct {
	Params []paramRequest `json:"params"`
}

type warningsOnlyResponse struct {
	Warnings []warningResponse `json:"warnings"`
}

func (h *ingestHandlers) logParams(c echo.Context) error {
	runID := c.Param("run_id")
	var req logParamsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inputs := make([]coordinator.ParamInput, len(req.Params))
	for i, p := range req.Params {
		inputs[i] = coordinator.ParamInput{Name: p.Name, Value: p.Value, Type: domain.ParamType(p.Type)}
	}
	warnings, err := h.coord.LogParams(c.Request().Context(), runID, inputs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, warningsOnlyResponse{Warnings: toWarningResponses(warnings)})
}

type logTagsRequest struct {
	Set        map[string]string `json:"set,omitempty"`
	RemoveKeys []string          `json:"remove_keys,omitempty"`
}

func (h *ingestHandlers) logTags(c echo.Context) error {
	runID := c.Param("run_id")
	var req logTagsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	warnings, err := h.coord.LogTags(c.Request().Context(), runID, req.Set, req.RemoveKeys)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, warningsOnlyResponse{Warnings: toWarningResponses(warnings)})
}

func (h *ingestHandlers) heartbeat(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.coord.Heartbeat(c.Request().Context(), runID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type finishRunRequest struct {
	Status   string  `json:"status"`
	ExitCode *int    `json:"exit_code,omitempty"`
	Error    *string `json:"error,omitempty"`
}

func (h *ingestHandlers) finishRun(c echo.Context) error {
	runID := c.Param("run_id")
	var req finishRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.coord.FinishRun(c.Request().Context(), runID, domain.RunStatus(req.Status), req.ExitCode, req.Error); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

type presignArtifactRequest struct {
	Path      string `json:"path"`
	Direction string `json:"direction"` // "upload" or "download"
}

type presignArtifactResponse struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at_ms"`
}

// presignArtifact implements the artifact upload path's external interface:
// runledger signs a URL, the caller transfers bytes directly to the bucket.
// The artifact upload path itself is out of scope beyond this contract.
func (h *ingestHandlers) presignArtifact(c echo.Context) error {
	if h.presigner == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "artifact storage not configured")
	}
	runID := c.Param("run_id")
	var req presignArtifactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	key := "runs/" + runID + "/" + req.Path

	var (
		url       string
		expiresAt time.Time
		err       error
	)
	switch req.Direction {
	case "download":
		url, expiresAt, err = h.presigner.PresignDownload(c.Request().Context(), key)
	default:
		url, expiresAt, err = h.presigner.PresignUpload(c.Request().Context(), key)
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, presignArtifactResponse{URL: url, ExpiresAt: expiresAt.UnixMilli()})
}

func toWarningResponses(warnings []domain.Warning) []warningResponse {
	out := make([]warningResponse, len(warnings))
	for i, w := range warnings {
		out[i] = warningResponse{Code: w.Code, Message: w.Message, Severity: w.Severity}
	}
	return out
}
