package core

import (
	"context"
	"io"
	"log"
)

type stubLLM struct {
	response string
	err      error
}

func (s stubLLM) Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error) {
	return s.response, s.err
}

func (s stubLLM) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	return s.response, 10, 20, s.err
}

func (s stubLLM) GetAvailableModels() []string { return []string{"stub"} }

func (s stubLLM) GetModelInfo(model string) (ModelInfo, error) { return ModelInfo{Name: model}, nil }

func (s stubLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 { return 0.01 }

// scriptedAgent replays a fixed sequence of attempt outcomes, recording
// every task it was dispatched with.
type scriptedAgent struct {
	kind      AgentKind
	responses []string
	errs      []error
	calls     []CohortTask
}

func (a *scriptedAgent) Kind() AgentKind { return a.kind }

func (a *scriptedAgent) Extract(ctx context.Context, task CohortTask, doc Document, plan *PlanningResult) (RawAgentOutput, error) {
	i := len(a.calls)
	a.calls = append(a.calls, task)
	if i < len(a.errs) && a.errs[i] != nil {
		return RawAgentOutput{}, a.errs[i]
	}
	response := ""
	if i < len(a.responses) {
		response = a.responses[i]
	} else if len(a.responses) > 0 {
		response = a.responses[len(a.responses)-1]
	}
	return RawAgentOutput{Text: response, Model: "stub"}, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

const validDrugResponse = `{
  "drug_entities": [
    {"concept_name": "Metformin", "drug_class": "biguanide", "source_text": "Metformin is first line."}
  ],
  "drug_relationships": [
    {"source_drug": "Metformin", "target_entity": "Type 2 diabetes mellitus", "relationship_type": "treats", "certainty": "high", "evidence": "Metformin is first line."}
  ],
  "treatment_pathways": [],
  "medication_cohorts": [],
  "detailed_analysis": "Metformin as first line therapy."
}`

const validDiagnosisResponse = `{
  "condition_entities": [
    {"concept_name": "Type 2 diabetes mellitus", "condition_category": "endocrine", "source_text": "Adults with type 2 diabetes."}
  ],
  "condition_relationships": [],
  "diagnostic_pathways": [],
  "condition_cohorts": [],
  "detailed_analysis": "Condition focus."
}`
