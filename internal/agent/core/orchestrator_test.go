package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/guidekg/config"
	"github.com/mohammad-safakhou/guidekg/internal/agent/telemetry"
)

// routingLLM answers the planning prompt and each specialist prompt with
// the matching canned payload.
type routingLLM struct{}

func (routingLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	text, _, _, err := routingLLM{}.GenerateWithTokens(ctx, prompt, model, options)
	return text, err
}

func (routingLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	switch {
	case strings.Contains(prompt, "specialized drug agent"):
		return validDrugResponse, 100, 200, nil
	case strings.Contains(prompt, "specialized diagnosis agent"):
		return validDiagnosisResponse, 100, 200, nil
	default:
		return planningResponse, 300, 400, nil
	}
}

func (routingLLM) GetAvailableModels() []string { return []string{"stub"} }

func (routingLLM) GetModelInfo(model string) (ModelInfo, error) { return ModelInfo{Name: model}, nil }

func (routingLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0.02 }

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Write(ctx context.Context, result *RunResult) error {
	return fmt.Errorf("disk full")
}

type capturingSink struct {
	results []*RunResult
}

func (s *capturingSink) Name() string { return "capturing" }

func (s *capturingSink) Write(ctx context.Context, result *RunResult) error {
	s.results = append(s.results, result)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			Routing: config.LLMRoutingConfig{Planning: "stub", Extraction: "stub"},
		},
		Agents: config.AgentsConfig{MaxRetries: 3},
	}
}

func newTestOrchestrator(t *testing.T, sinks []Sink) *Orchestrator {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	orch, err := NewOrchestrator(testConfig(), logger, tel, routingLLM{}, routingLLM{}, nil, nil, sinks)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return orch
}

func TestProcessDocumentEndToEnd(t *testing.T) {
	sink := &capturingSink{}
	orch := newTestOrchestrator(t, []Sink{sink})

	result, err := orch.ProcessDocument(context.Background(), testDoc())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}

	if result.Stats.TotalCohorts != 2 || result.Stats.FailedCohorts != 0 {
		t.Fatalf("unexpected cohort stats: %+v", result.Stats)
	}
	if len(result.KnowledgeGraph.Nodes) == 0 {
		t.Fatalf("expected nodes in the final graph")
	}
	if _, ok := result.KnowledgeGraph.Nodes["Metformin"]; !ok {
		t.Fatalf("expected Metformin node, got %v", result.KnowledgeGraph.Nodes)
	}
	for _, edge := range result.KnowledgeGraph.Edges {
		if _, ok := result.KnowledgeGraph.Nodes[edge.Source]; !ok {
			t.Fatalf("dangling edge source %q", edge.Source)
		}
		if _, ok := result.KnowledgeGraph.Nodes[edge.Target]; !ok {
			t.Fatalf("dangling edge target %q", edge.Target)
		}
	}
	if len(sink.results) != 1 {
		t.Fatalf("expected one sink write, got %d", len(sink.results))
	}
	if result.ProcessingTimestamp.IsZero() {
		t.Fatalf("processing timestamp must be set")
	}
}

func TestProcessDocumentPlanningFailureIsFatal(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	broken := stubLLM{err: fmt.Errorf("auth failure")}
	orch, err := NewOrchestrator(testConfig(), logger, tel, broken, routingLLM{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := orch.ProcessDocument(context.Background(), testDoc())
	var planErr *PlanningError
	if !errors.As(err, &planErr) {
		t.Fatalf("expected *PlanningError, got %T: %v", err, err)
	}
	if result != nil {
		t.Fatalf("planning failure must produce no partial artifact")
	}
}

func TestProcessDocumentSinkFailureReturnsGraph(t *testing.T) {
	orch := newTestOrchestrator(t, []Sink{failingSink{}})

	result, err := orch.ProcessDocument(context.Background(), testDoc())
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected *SinkError, got %T: %v", err, err)
	}
	if result == nil || len(result.KnowledgeGraph.Nodes) == 0 {
		t.Fatalf("sink failure must still return the in-memory graph")
	}
}

type failingStore struct{}

func (failingStore) SaveRun(ctx context.Context, result *RunResult) error {
	return fmt.Errorf("postgres down")
}

func TestProcessDocumentStoreFailureReturnsGraph(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	tel := telemetry.NewTelemetry(config.TelemetryConfig{})
	sink := &capturingSink{}
	orch, err := NewOrchestrator(testConfig(), logger, tel, routingLLM{}, routingLLM{}, nil, failingStore{}, []Sink{sink})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	result, err := orch.ProcessDocument(context.Background(), testDoc())
	var sinkErr *SinkError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected *SinkError, got %T: %v", err, err)
	}
	if sinkErr.Sink != "store" {
		t.Fatalf("expected store-attributed failure, got %q", sinkErr.Sink)
	}
	if result == nil || len(result.KnowledgeGraph.Nodes) == 0 {
		t.Fatalf("store failure must still return the in-memory graph")
	}
	if len(sink.results) != 0 {
		t.Fatalf("sinks must not run after the store failed, got %d writes", len(sink.results))
	}
}

func TestProcessDocumentArtifactRecordsPerCohortStatus(t *testing.T) {
	orch := newTestOrchestrator(t, nil)

	result, err := orch.ProcessDocument(context.Background(), testDoc())
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if len(result.CohortAnalysis) != 2 {
		t.Fatalf("expected 2 cohort entries, got %d", len(result.CohortAnalysis))
	}
	for _, task := range result.CohortAnalysis {
		if task.Status != TaskCompleted && task.Status != TaskFailed {
			t.Fatalf("cohort %s has non-terminal status %s", task.Name, task.Status)
		}
	}
}
