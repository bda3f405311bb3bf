package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/metadata"
	"github.com/runledger/runledger/metrics"
	"github.com/runledger/runledger/query"
)

// queryHandlers binds the query surface (§6) to HTTP/JSON.
type queryHandlers struct {
	engine *query.Engine
}

type paramFilterRequest struct {
	Name  string `json:"name"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

type listRunsRequest struct {
	Project    string               `json:"project"`
	Statuses   []string             `json:"statuses,omitempty"`
	Tags       map[string]string    `json:"tags,omitempty"`
	NameGlob   string               `json:"name_glob,omitempty"`
	After      *time.Time           `json:"after,omitempty"`
	Before     *time.Time           `json:"before,omitempty"`
	ParentID   *string              `json:"parent_id,omitempty"`
	Params     []paramFilterRequest `json:"params,omitempty"`
	Sort       string               `json:"sort,omitempty"`
	Descending bool                 `json:"descending,omitempty"`
	PageToken  string               `json:"page_token,omitempty"`
	PageSize   int                  `json:"page_size,omitempty"`
	Summary    bool                 `json:"include_summary,omitempty"`
	Params_    bool                 `json:"include_params,omitempty"`
}

type runResponse struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	ExitCode    *int               `json:"exit_code,omitempty"`
	Error       *string            `json:"error,omitempty"`
	ParentRunID *string            `json:"parent_run_id,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
	SystemInfo  map[string]string  `json:"system_info,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Summary     []summaryResponse  `json:"summary,omitempty"`
	Params      []domain.Parameter `json:"params,omitempty"`
}

// summaryResponse mirrors domain.Summary with wire-safe floats: Min/Max
// are excluded-from-non-finite per §4.6's downsampling rule but Last and
// Count are defined even when the run's last logged value was NaN/±Inf.
type summaryResponse struct {
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Min       wireFloat64 `json:"min"`
	Max       wireFloat64 `json:"max"`
	Last      wireFloat64 `json:"last"`
	LastStep  int64       `json:"last_step"`
	Count     int64       `json:"count"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
}

func toSummaryResponse(s domain.Summary) summaryResponse {
	return summaryResponse{
		RunID: s.RunID, Name: s.Name,
		Min: wireFloat64(s.Min), Max: wireFloat64(s.Max), Last: wireFloat64(s.Last),
		LastStep: s.LastStep, Count: s.Count,
		FirstSeen: s.FirstSeen, LastSeen: s.LastSeen,
	}
}

type listRunsResponse struct {
	Runs            []runResponse `json:"runs"`
	NextPageToken   string        `json:"next_page_token,omitempty"`
	TotalEstimated  int64         `json:"total_estimated"`
	EstimateIsExact bool          `json:"estimate_is_exact"`
}

func toRunResponse(v query.RunView) runResponse {
	r := v.Run
	summary := make([]summaryResponse, len(v.Summary))
	for i, s := range v.Summary {
		summary[i] = toSummaryResponse(s)
	}
	return runResponse{
		ID: r.ID, ProjectID: r.ProjectID, Name: r.Name, Status: string(r.Status),
		ExitCode: r.ExitCode, Error: r.Error, ParentRunID: r.ParentRunID,
		Tags: r.Tags, SystemInfo: r.SystemInfo,
		CreatedAt: r.CreatedAt, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt,
		Summary: summary, Params: v.Params,
	}
}

func (h *queryHandlers) listRuns(c echo.Context) error {
	var req listRunsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	project, err := h.engine.ResolveProject(c.Request().Context(), req.Project)
	if err != nil {
		return writeError(c, err)
	}

	f := metadata.Filter{
		ProjectID:  project.ID,
		Tags:       req.Tags,
		NameGlob:   req.NameGlob,
		After:      req.After,
		Before:     req.Before,
		ParentID:   req.ParentID,
		Sort:       metadata.SortKey(req.Sort),
		Descending: req.Descending,
	}
	for _, s := range req.Statuses {
		f.Statuses = append(f.Statuses, domain.RunStatus(s))
	}
	for _, p := range req.Params {
		f.Params = append(f.Params, metadata.ParamFilter{Name: p.Name, Op: metadata.ParamOp(p.Op), Value: p.Value})
	}

	result, err := h.engine.ListRuns(c.Request().Context(), f, req.PageToken, req.PageSize, query.Projection{Summary: req.Summary, Params: req.Params_})
	if err != nil {
		return writeError(c, err)
	}

	resp := listRunsResponse{NextPageToken: result.NextPageToken, TotalEstimated: result.TotalEstimated, EstimateIsExact: result.EstimateIsExact}
	for _, v := range result.Runs {
		resp.Runs = append(resp.Runs, toRunResponse(v))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *queryHandlers) getRun(c echo.Context) error {
	runID := c.Param("run_id")
	view, err := h.engine.GetRun(c.Request().Context(), runID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toRunResponse(*view))
}

type metricsRequest struct {
	RunIDs      []string `json:"run_ids"`
	MetricNames []string `json:"metric_names"`
	StepFrom    *int64   `json:"step_from,omitempty"`
	StepTo      *int64   `json:"step_to,omitempty"`
	TimeFrom    *time.Time `json:"time_from,omitempty"`
	TimeTo      *time.Time `json:"time_to,omitempty"`
	MaxPoints   int      `json:"max_points,omitempty"`
	Downsample  string   `json:"downsample_method,omitempty"`
}

type metricPointResponse struct {
	Step      int64       `json:"step"`
	Value     wireFloat64 `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

type seriesResponse struct {
	RunID              string                `json:"run_id"`
	Name               string                `json:"name"`
	Points             []metricPointResponse `json:"points"`
	Downsampled        bool                  `json:"downsampled"`
	OriginalPointCount int64                 `json:"original_point_count"`
	Min                wireFloat64           `json:"min"`
	Max                wireFloat64           `json:"max"`
	Mean               wireFloat64           `json:"mean"`
	Last               wireFloat64           `json:"last"`
	Count              int64                 `json:"count"`
}

func (h *queryHandlers) getMetrics(c echo.Context) error {
	var req metricsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	results, err := h.engine.FetchMetrics(c.Request().Context(), query.MetricsRequest{
		RunIDs:      req.RunIDs,
		MetricNames: req.MetricNames,
		StepRange:   metrics.StepRange{From: req.StepFrom, To: req.StepTo},
		TimeRange:   metrics.TimeRange{From: req.TimeFrom, To: req.TimeTo},
		MaxPoints:   req.MaxPoints,
		Method:      query.DownsampleMethod(req.Downsample),
	})
	if err != nil {
		return writeError(c, err)
	}

	resp := make([]seriesResponse, len(results))
	for i, r := range results {
		points := make([]metricPointResponse, len(r.Points))
		for j, p := range r.Points {
			points[j] = metricPointResponse{Step: p.Step, Value: wireFloat64(p.Value), Timestamp: p.Timestamp}
		}
		resp[i] = seriesResponse{
			RunID: r.RunID, Name: r.Name, Points: points,
			Downsampled: r.Downsampled, OriginalPointCount: r.OriginalPointCount,
			Min: wireFloat64(r.Stats.Min), Max: wireFloat64(r.Stats.Max),
			Mean: wireFloat64(r.Stats.Mean), Last: wireFloat64(r.Stats.Last), Count: r.Stats.Count,
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"run_metrics": resp})
}

type compareRunsRequest struct {
	RunIDs      []string `json:"run_ids"`
	MetricNames []string `json:"metric_names"`
	AlignMode   string   `json:"alignment_mode"`
	MaxPoints   int      `json:"max_points,omitempty"`
}

type alignedSeriesResponse struct {
	RunID  string              `json:"run_id"`
	Name   string              `json:"name"`
	Values []alignedPointResponse `json:"values"`
}

type alignedPointResponse struct {
	Value wireFloat64 `json:"value,omitempty"`
	Gap   bool        `json:"gap,omitempty"`
}

func (h *queryHandlers) compareRuns(c echo.Context) error {
	var req compareRunsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.engine.CompareRuns(c.Request().Context(), query.CompareRequest{
		RunIDs:      req.RunIDs,
		MetricNames: req.MetricNames,
		Mode:        query.AlignmentMode(req.AlignMode),
		MaxPoints:   req.MaxPoints,
	})
	if err != nil {
		return writeError(c, err)
	}

	series := make([]alignedSeriesResponse, len(result.Series))
	for i, s := range result.Series {
		values := make([]alignedPointResponse, len(s.Points))
		for j, p := range s.Points {
			values[j] = alignedPointResponse{Value: wireFloat64(p.Value), Gap: p.Gap}
		}
		series[i] = alignedSeriesResponse{RunID: s.RunID, Name: s.Name, Values: values}
	}
	return c.JSON(http.StatusOK, map[string]any{"common_x": result.CommonX, "series": series})
}
