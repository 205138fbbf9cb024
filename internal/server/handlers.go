package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
	"github.com/mohammad-safakhou/guidekg/internal/agent/telemetry"
	"github.com/mohammad-safakhou/guidekg/internal/guideline"
	"github.com/mohammad-safakhou/guidekg/internal/runtime"
	"github.com/mohammad-safakhou/guidekg/internal/store"
)

// Processor is the pipeline surface the HTTP handlers depend on.
type Processor interface {
	ProcessDocument(ctx context.Context, doc core.Document) (*core.RunResult, error)
	GetProcessingStatus(runID string) (*core.ProcessingStatus, bool)
}

// Register attaches all routes. runStore may be nil when no persistence
// backend is configured; the runs endpoints then answer 503.
func Register(e *echo.Echo, proc Processor, runStore store.RunStore, metrics *runtime.Metrics, tele *telemetry.Telemetry) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api")
	h := &runsHandler{proc: proc, store: runStore, metrics: metrics, tele: tele}
	api.POST("/process", h.process)
	api.GET("/runs", h.list)
	api.GET("/runs/:id", h.get)
	api.GET("/status/:id", h.status)
	api.GET("/telemetry", h.telemetry)
}

type runsHandler struct {
	proc    Processor
	store   store.RunStore
	metrics *runtime.Metrics
	tele    *telemetry.Telemetry
}

// process parses a guideline document from the request body and runs the
// full extraction pipeline synchronously, returning the run artifact.
func (h *runsHandler) process(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body: "+err.Error())
	}

	doc, err := guideline.Parse(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document: "+err.Error())
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	result, err := h.proc.ProcessDocument(c.Request().Context(), doc)
	if err != nil {
		var sinkErr *core.SinkError
		if errors.As(err, &sinkErr) && result != nil {
			// The graph is intact even when a sink write failed; hand it
			// back and surface the failure in the response.
			h.record(result, "completed")
			return c.JSON(http.StatusOK, map[string]interface{}{
				"result":  result,
				"warning": sinkErr.Error(),
			})
		}
		h.recordFailure()
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	h.record(result, "completed")
	return c.JSON(http.StatusOK, map[string]interface{}{"result": result})
}

func (h *runsHandler) record(result *core.RunResult, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	h.metrics.RunDuration.Observe(result.Stats.Duration.Seconds())
	h.metrics.GraphNodes.Observe(float64(result.Stats.TotalNodes))
	h.metrics.LLMCost.Add(result.Stats.TotalCost)
	for _, res := range result.DetailedResults {
		if res.ModelUsed != "" {
			h.metrics.LLMTokens.WithLabelValues(res.ModelUsed).Add(float64(res.TokensUsed))
		}
	}
	for _, task := range result.CohortAnalysis {
		h.metrics.CohortDispatches.WithLabelValues(string(task.AgentKind)).Inc()
		h.metrics.CohortRetries.Add(float64(task.Retries))
	}
}

func (h *runsHandler) recordFailure() {
	if h.metrics == nil {
		return
	}
	h.metrics.RunsTotal.WithLabelValues("failed").Inc()
}

func (h *runsHandler) list(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no storage backend configured")
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *runsHandler) get(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no storage backend configured")
	}
	result, err := h.store.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *runsHandler) status(c echo.Context) error {
	status, ok := h.proc.GetProcessingStatus(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown run")
	}
	return c.JSON(http.StatusOK, status)
}

func (h *runsHandler) telemetry(c echo.Context) error {
	if h.tele == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "telemetry disabled")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"metrics": h.tele.GetMetrics(),
		"costs":   h.tele.GetCostSummary(),
	})
}
