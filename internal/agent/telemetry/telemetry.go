package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/guidekg/config"
)

// Telemetry provides monitoring and cost tracking for document runs
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns             int64
	SuccessfulRuns        int64
	FailedRuns            int64
	AverageProcessingTime time.Duration

	// Cohort metrics
	CohortDispatches   map[string]int64
	CohortSuccessRates map[string]float64
	CohortAverageTimes map[string]time.Duration
	CohortRetries      map[string]int64

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// CostTracker tracks costs across LLM models and pipeline phases
type CostTracker struct {
	PhaseCosts  map[string]float64 // planning/extraction -> cost
	ModelCosts  map[string]float64 // model -> cost
	TotalCost   float64
	TotalTokens int64
}

// RunEvent represents one complete document processing run
type RunEvent struct {
	RunID          string
	DocumentTitle  string
	StartTime      time.Time
	EndTime        time.Time
	ProcessingTime time.Duration
	Success        bool
	Error          string
	Cost           float64
	TokensUsed     int64
	CohortsTotal   int
	CohortsFailed  int
	ModelsUsed     []string
}

// CohortEvent represents one cohort extraction attempt
type CohortEvent struct {
	TaskID     string
	AgentKind  string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Retries    int
	Error      string
	Cost       float64
	TokensUsed int64
	ModelUsed  string
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(config config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: config,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			CohortDispatches:   make(map[string]int64),
			CohortSuccessRates: make(map[string]float64),
			CohortAverageTimes: make(map[string]time.Duration),
			CohortRetries:      make(map[string]int64),
			LLMRequests:        make(map[string]int64),
			LLMTokensUsed:      make(map[string]int64),
		},
		costTracker: &CostTracker{
			PhaseCosts: make(map[string]float64),
			ModelCosts: make(map[string]float64),
		},
	}

	if config.Enabled && config.PeriodicLogs {
		go t.startMetricsCollection()
	}

	return t
}

// RecordRunEvent records a complete document processing run
func (t *Telemetry) RecordRunEvent(ctx context.Context, event RunEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}

	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageProcessingTime = event.ProcessingTime
	} else {
		total := t.metrics.AverageProcessingTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageProcessingTime = (total + event.ProcessingTime) / time.Duration(t.metrics.TotalRuns)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Run Event: ID=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d, Cohorts=%d (%d failed)",
		event.RunID, event.Success, event.ProcessingTime, event.Cost, event.TokensUsed,
		event.CohortsTotal, event.CohortsFailed)
}

// RecordCohortEvent records one cohort extraction attempt
func (t *Telemetry) RecordCohortEvent(ctx context.Context, event CohortEvent) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.CohortDispatches[event.AgentKind]++
	t.metrics.CohortRetries[event.AgentKind] += int64(event.Retries)

	currentSuccess := t.metrics.CohortSuccessRates[event.AgentKind]
	currentDispatches := t.metrics.CohortDispatches[event.AgentKind]
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.CohortSuccessRates[event.AgentKind] = currentSuccess / float64(currentDispatches)

	currentAvg := t.metrics.CohortAverageTimes[event.AgentKind]
	if currentDispatches == 1 {
		t.metrics.CohortAverageTimes[event.AgentKind] = event.Duration
	} else {
		total := currentAvg * time.Duration(currentDispatches-1)
		t.metrics.CohortAverageTimes[event.AgentKind] = (total + event.Duration) / time.Duration(currentDispatches)
	}

	if event.ModelUsed != "" {
		t.metrics.LLMRequests[event.ModelUsed]++
		t.metrics.LLMTokensUsed[event.ModelUsed] += event.TokensUsed
		t.costTracker.ModelCosts[event.ModelUsed] += event.Cost
	}
	t.costTracker.PhaseCosts["extraction"] += event.Cost

	t.logger.Printf("Cohort Event: Agent=%s, Success=%t, Duration=%v, Retries=%d, Cost=$%.4f",
		event.AgentKind, event.Success, event.Duration, event.Retries, event.Cost)
}

// RecordPlanningCost attributes planning-phase spend to the cost tracker
func (t *Telemetry) RecordPlanningCost(model string, tokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[model]++
	t.metrics.LLMTokensUsed[model] += tokens
	t.costTracker.ModelCosts[model] += cost
	t.costTracker.PhaseCosts["planning"] += cost
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.CohortDispatches = make(map[string]int64)
	metrics.CohortSuccessRates = make(map[string]float64)
	metrics.CohortAverageTimes = make(map[string]time.Duration)
	metrics.CohortRetries = make(map[string]int64)
	metrics.LLMRequests = make(map[string]int64)
	metrics.LLMTokensUsed = make(map[string]int64)

	for k, v := range t.metrics.CohortDispatches {
		metrics.CohortDispatches[k] = v
	}
	for k, v := range t.metrics.CohortSuccessRates {
		metrics.CohortSuccessRates[k] = v
	}
	for k, v := range t.metrics.CohortAverageTimes {
		metrics.CohortAverageTimes[k] = v
	}
	for k, v := range t.metrics.CohortRetries {
		metrics.CohortRetries[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}

	return metrics
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost   float64
	TotalTokens int64
	PhaseCosts  map[string]float64
	ModelCosts  map[string]float64
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		PhaseCosts:  make(map[string]float64),
		ModelCosts:  make(map[string]float64),
	}

	for k, v := range t.costTracker.PhaseCosts {
		summary.PhaseCosts[k] = v
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}

	return summary
}

// startMetricsCollection starts periodic metrics collection
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()

		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns,
			metrics.AverageProcessingTime, costs.TotalCost, costs.TotalTokens)
	}
}

// Shutdown gracefully shuts down the telemetry system
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Runs: %d", metrics.TotalRuns)
	if metrics.TotalRuns > 0 {
		t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulRuns)/float64(metrics.TotalRuns)*100)
	}
	t.logger.Printf("  Average Processing Time: %v", metrics.AverageProcessingTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	successPct := 0.0
	failedPct := 0.0
	if metrics.TotalRuns > 0 {
		successPct = float64(metrics.SuccessfulRuns) / float64(metrics.TotalRuns) * 100
		failedPct = float64(metrics.FailedRuns) / float64(metrics.TotalRuns) * 100
	}

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Runs: %d
  Successful: %d (%.2f%%)
  Failed: %d (%.2f%%)
  Average Processing Time: %v
  Total Cost: $%.4f
  Total Tokens: %d

Cohort Performance:
`, metrics.TotalRuns, metrics.SuccessfulRuns, successPct,
		metrics.FailedRuns, failedPct,
		metrics.AverageProcessingTime, costs.TotalCost, costs.TotalTokens)

	for kind, dispatches := range metrics.CohortDispatches {
		successRate := metrics.CohortSuccessRates[kind]
		avgTime := metrics.CohortAverageTimes[kind]
		retries := metrics.CohortRetries[kind]
		report += fmt.Sprintf("  %s: %d dispatches, %.2f%% success, %d retries, %v avg time\n",
			kind, dispatches, successRate*100, retries, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	return report
}
