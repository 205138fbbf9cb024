package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	appconfig "github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/core"
	"github.com/mohammad-safakhou/guidekg/internal/agent/telemetry"
	"github.com/mohammad-safakhou/guidekg/internal/llm"
	"github.com/mohammad-safakhou/guidekg/internal/runtime"
	"github.com/mohammad-safakhou/guidekg/internal/sink"
	"github.com/mohammad-safakhou/guidekg/internal/store"
	"github.com/mohammad-safakhou/guidekg/internal/verify"
)

// Run wires the full pipeline and serves the HTTP API until the listener
// stops. Top-level dependency construction happens here, in one place.
func Run(ctx context.Context, cfg *appconfig.Config, addr string) error {
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := newEcho(baseLogger)

	if dsn := cfg.Storage.Postgres.DSN(); dsn != "" {
		if err := store.Migrate("file://migrations", dsn, "up", 0); err != nil {
			baseLogger.Printf("warn: migrations: %v", err)
		}
	}

	orch, runStore, tele, err := BuildPipeline(ctx, cfg, baseLogger)
	if err != nil {
		return err
	}
	defer tele.Shutdown()

	metrics := runtime.NewMetrics()
	Register(e, orch, runStore, metrics, tele)

	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":10002"
	}
	baseLogger.Printf("listening on %s", addr)
	return e.Start(addr)
}

// BuildPipeline constructs the orchestrator with all of its dependencies,
// the run store and telemetry. Shared between the API server and the
// one-shot CLI path.
func BuildPipeline(ctx context.Context, cfg *appconfig.Config, logger *log.Logger) (*core.Orchestrator, store.RunStore, *telemetry.Telemetry, error) {
	runStore, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	planningLLM, err := llm.NewProvider(cfg.LLM, cfg.LLM.Routing.Planning)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("planning provider: %w", err)
	}
	extractionLLM, err := llm.NewProvider(cfg.LLM, cfg.LLM.Routing.Extraction)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("extraction provider: %w", err)
	}

	sinks, err := sink.FromConfig(ctx, cfg.Sink, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	verifier := verify.NewEvidenceVerifier(log.New(log.Writer(), "[VERIFY] ", log.LstdFlags))
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)

	var orchStore core.RunStore
	if runStore != nil {
		orchStore = runStore
	}
	orch, err := core.NewOrchestrator(cfg, orchLogger, tele, planningLLM, extractionLLM, verifier, orchStore, sinks)
	if err != nil {
		tele.Shutdown()
		return nil, nil, nil, err
	}
	return orch, runStore, tele, nil
}

// newEcho builds the echo instance with recovery, CORS and the unified
// JSON error handler.
func newEcho(baseLogger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
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
		AllowHeaders: []string{"Content-Type"},
	}))
	return e
}
