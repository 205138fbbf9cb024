package runtime

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandlerExposesInstruments(t *testing.T) {
	m := NewMetrics()
	m.RunsTotal.WithLabelValues("completed").Inc()
	m.CohortDispatches.WithLabelValues("drug_agent").Add(3)
	m.LLMTokens.WithLabelValues("gpt-4o").Add(1200)
	m.RunDuration.Observe(42)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`guidekg_runs_total{outcome="completed"} 1`,
		`guidekg_cohort_dispatches_total{agent="drug_agent"} 3`,
		`guidekg_llm_tokens_total{model="gpt-4o"} 1200`,
		"guidekg_run_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestNewMetricsRegistersCleanly(t *testing.T) {
	// Two instances must not fight over a shared default registry.
	a := NewMetrics()
	b := NewMetrics()
	a.RunsTotal.WithLabelValues("failed").Inc()
	if a == b {
		t.Fatalf("expected distinct metric sets")
	}
}
