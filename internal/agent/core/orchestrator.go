package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/telemetry"
)

// Verifier grounds aggregated graph nodes back in the source document,
// flagging the ones whose evidence cannot be found.
type Verifier interface {
	VerifyGraph(ctx context.Context, doc Document, graph *KnowledgeGraph) (int, error)
}

// RunStore persists finished runs for later retrieval through the API.
type RunStore interface {
	SaveRun(ctx context.Context, result *RunResult) error
}

// ProcessingStatus tracks one in-flight document run.
type ProcessingStatus struct {
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	TotalTasks  int       `json:"total_tasks"`
}

var orchestratorTracer trace.Tracer = otel.Tracer("guidekg/internal/agent/orchestrator")

// Orchestrator coordinates the whole pipeline for one document: planning,
// the scheduler loop, aggregation, verification and persistence. Per-cohort
// failures are absorbed inside the scheduler; only planning and sink
// failures terminate a run.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	planner    *Planner
	scheduler  *Scheduler
	aggregator *Aggregator
	verifier   Verifier
	store      RunStore
	sinks      []Sink

	processing map[string]*ProcessingStatus
	mu         sync.RWMutex
}

// NewOrchestrator creates a new orchestrator instance. planning and
// extraction providers may differ per the routing config; verifier, store
// and sinks are optional.
func NewOrchestrator(cfg *config.Config, logger *log.Logger, tel *telemetry.Telemetry,
	planningLLM, extractionLLM LLMProvider, verifier Verifier, store RunStore, sinks []Sink) (*Orchestrator, error) {

	if planningLLM == nil || extractionLLM == nil {
		return nil, fmt.Errorf("both planning and extraction LLM providers are required")
	}

	agentLogger := log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	agents := map[AgentKind]Agent{
		AgentKindDrug:      NewDrugAgent(extractionLLM, cfg.LLM.Routing.Extraction, agentLogger),
		AgentKindDiagnosis: NewDiagnosisAgent(extractionLLM, cfg.LLM.Routing.Extraction, agentLogger),
	}

	return &Orchestrator{
		config:     cfg,
		logger:     logger,
		telemetry:  tel,
		planner:    NewPlanner(planningLLM, cfg.LLM.Routing.Planning, log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)),
		scheduler:  NewScheduler(agents, cfg.Agents.MaxRetries, log.New(log.Writer(), "[SCHED] ", log.LstdFlags)),
		aggregator: NewAggregator(log.New(log.Writer(), "[AGG] ", log.LstdFlags)),
		verifier:   verifier,
		store:      store,
		sinks:      sinks,
		processing: make(map[string]*ProcessingStatus),
	}, nil
}

// ProcessDocument runs the full pipeline over one guideline document and
// returns the final artifact. When a sink fails, the error is returned
// together with the completed RunResult so no extraction work is lost.
func (o *Orchestrator) ProcessDocument(ctx context.Context, doc Document) (*RunResult, error) {
	startTime := time.Now()
	runID := uuid.New().String()

	ctx, span := orchestratorTracer.Start(ctx, "agent.process_document",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("document.id", doc.ID),
			attribute.String("document.title", doc.Title),
		))
	defer span.End()

	if o.config.General.MaxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.General.MaxProcessingTime)
		defer cancel()
	}

	status := &ProcessingStatus{
		RunID:       runID,
		Status:      "pending",
		CreatedAt:   time.Now(),
		LastUpdated: time.Now(),
	}
	o.mu.Lock()
	o.processing[runID] = status
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.processing, runID)
		o.mu.Unlock()
	}()

	runEvent := telemetry.RunEvent{
		RunID:         runID,
		DocumentTitle: doc.Title,
		StartTime:     startTime,
	}
	defer func() {
		runEvent.EndTime = time.Now()
		runEvent.ProcessingTime = runEvent.EndTime.Sub(runEvent.StartTime)
		o.telemetry.RecordRunEvent(ctx, runEvent)
	}()

	o.logger.Printf("Starting run %s for document %q", runID, doc.Title)
	o.updateStatus(status, "planning", 0.1, "Planning cohort analyses")

	// Phase 1: Planning
	planCtx, planSpan := orchestratorTracer.Start(ctx, "agent.plan")
	plan, tasks, err := o.planner.Plan(planCtx, doc)
	if err != nil {
		o.updateStatus(status, "failed", 0.0, fmt.Sprintf("Planning failed: %v", err))
		runEvent.Success = false
		runEvent.Error = err.Error()
		planSpan.RecordError(err)
		planSpan.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		planSpan.End()
		return nil, err
	}
	planSpan.SetStatus(codes.Ok, "completed")
	planSpan.End()
	span.AddEvent("plan.complete", trace.WithAttributes(
		attribute.Int("plan.task_count", len(tasks)),
		attribute.Int("plan.entity_count", len(plan.Entities)),
	))
	o.telemetry.RecordPlanningCost(plan.ModelUsed, plan.TokensUsed, plan.CostEstimate)
	runEvent.Cost += plan.CostEstimate
	runEvent.TokensUsed += plan.TokensUsed
	runEvent.ModelsUsed = append(runEvent.ModelsUsed, plan.ModelUsed)
	status.TotalTasks = len(tasks)

	// Phase 2: Scheduler loop
	o.updateStatus(status, "extracting", 0.3, fmt.Sprintf("Dispatching %d cohort tasks", len(tasks)))
	schedCtx, schedSpan := orchestratorTracer.Start(ctx, "agent.schedule")
	finalized, results := o.scheduler.Run(schedCtx, doc, plan, tasks)
	schedSpan.End()

	failed := 0
	for _, task := range finalized {
		success := task.Status == TaskCompleted
		if !success {
			failed++
		}
		o.telemetry.RecordCohortEvent(ctx, telemetry.CohortEvent{
			TaskID:    task.ID,
			AgentKind: string(task.AgentKind),
			StartTime: task.CreatedAt,
			EndTime:   task.UpdatedAt,
			Duration:  task.UpdatedAt.Sub(task.CreatedAt),
			Success:   success,
			Retries:   task.Retries,
		})
	}
	for _, result := range results {
		runEvent.Cost += result.CostEstimate
		runEvent.TokensUsed += result.TokensUsed
	}
	runEvent.CohortsTotal = len(finalized)
	runEvent.CohortsFailed = failed
	span.AddEvent("schedule.complete", trace.WithAttributes(
		attribute.Int("cohorts.total", len(finalized)),
		attribute.Int("cohorts.failed", failed),
	))

	// Phase 3: Aggregation. The planner's document-level extraction goes
	// in first so it wins on duplicate concept names.
	o.updateStatus(status, "aggregating", 0.7, "Merging extraction results")
	merged := append([]ExtractionResult{PlanBaseline(plan)}, results...)
	graph, dropped := o.aggregator.Aggregate(merged)

	// Phase 4: Evidence verification (optional)
	if o.verifier != nil {
		o.updateStatus(status, "verifying", 0.8, "Grounding nodes in source text")
		unverified, err := o.verifier.VerifyGraph(ctx, doc, &graph)
		if err != nil {
			o.logger.Printf("warn: evidence verification failed: %v", err)
		} else if unverified > 0 {
			o.logger.Printf("%d nodes lack source evidence", unverified)
		}
	}

	result := &RunResult{
		RunID:           runID,
		DocumentID:      doc.ID,
		DocumentTitle:   doc.Title,
		KnowledgeGraph:  graph,
		CohortAnalysis:  finalized,
		DetailedResults: results,
		SummarizedText:  plan.SummarizedText,
		Stats: RunStats{
			TotalCohorts:     len(finalized),
			CompletedCohorts: len(finalized) - failed,
			FailedCohorts:    failed,
			TotalNodes:       len(graph.Nodes),
			TotalEdges:       len(graph.Edges),
			DroppedEdges:     dropped,
			TotalTokens:      runEvent.TokensUsed,
			TotalCost:        runEvent.Cost,
			Duration:         time.Since(startTime),
		},
		ProcessingTimestamp: time.Now(),
	}

	// Phase 5: Persistence. A store or sink failure fails the run but the
	// artifact is still returned alongside the error.
	o.updateStatus(status, "persisting", 0.9, "Writing run artifact")
	if o.store != nil {
		if err := o.store.SaveRun(ctx, result); err != nil {
			return result, o.failPersistence(span, status, &runEvent, &SinkError{Sink: "store", Err: err})
		}
	}
	for _, sink := range o.sinks {
		if err := sink.Write(ctx, result); err != nil {
			return result, o.failPersistence(span, status, &runEvent, &SinkError{Sink: sink.Name(), Err: err})
		}
	}

	o.updateStatus(status, "completed", 1.0, "Run complete")
	runEvent.Success = true
	span.SetStatus(codes.Ok, "completed")
	o.logger.Printf("Run %s complete in %v: %d nodes, %d edges, %d/%d cohorts completed",
		runID, result.Stats.Duration, result.Stats.TotalNodes, result.Stats.TotalEdges,
		result.Stats.CompletedCohorts, result.Stats.TotalCohorts)
	return result, nil
}

// failPersistence marks the run failed after a store or sink write error.
// The caller still returns the finished artifact so no work is lost.
func (o *Orchestrator) failPersistence(span trace.Span, status *ProcessingStatus, event *telemetry.RunEvent, sinkErr *SinkError) error {
	o.updateStatus(status, "failed", 1.0, sinkErr.Error())
	event.Success = false
	event.Error = sinkErr.Error()
	span.RecordError(sinkErr)
	span.SetStatus(codes.Error, sinkErr.Error())
	return sinkErr
}

// GetProcessingStatus returns the live status of an in-flight run.
func (o *Orchestrator) GetProcessingStatus(runID string) (*ProcessingStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	status, ok := o.processing[runID]
	if !ok {
		return nil, false
	}
	snapshot := *status
	return &snapshot, true
}

func (o *Orchestrator) updateStatus(status *ProcessingStatus, state string, progress float64, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status.Status = state
	status.Progress = progress
	status.Message = message
	status.LastUpdated = time.Now()
}
