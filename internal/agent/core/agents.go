package core

import (
	"context"
	"log"
)

// extractionAgent is the shared machinery behind the specialist variants:
// build the domain prompt, issue one LLM call, return the raw text with
// usage attached. All parsing and validation happens in the scheduler loop.
type extractionAgent struct {
	kind      AgentKind
	llm       LLMProvider
	model     string
	buildFunc func(task CohortTask, doc Document, plan *PlanningResult) string
	logger    *log.Logger
}

func (a *extractionAgent) Kind() AgentKind { return a.kind }

func (a *extractionAgent) Extract(ctx context.Context, task CohortTask, doc Document, plan *PlanningResult) (RawAgentOutput, error) {
	prompt := a.buildFunc(task, doc, plan)
	a.logger.Printf("dispatching %s for cohort %q (attempt %d)", a.kind, task.Name, task.Retries+1)

	text, inputTokens, outputTokens, err := a.llm.GenerateWithTokens(ctx, prompt, a.model, nil)
	if err != nil {
		return RawAgentOutput{}, &AgentCallError{TaskID: task.ID, Kind: a.kind, Err: err}
	}
	return RawAgentOutput{
		Text:         text,
		Model:        a.model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         a.llm.CalculateCost(inputTokens, outputTokens, a.model),
	}, nil
}

// NewDrugAgent creates the medication specialist.
func NewDrugAgent(llm LLMProvider, model string, logger *log.Logger) Agent {
	return &extractionAgent{
		kind:      AgentKindDrug,
		llm:       llm,
		model:     model,
		buildFunc: createDrugPrompt,
		logger:    logger,
	}
}

// NewDiagnosisAgent creates the condition specialist.
func NewDiagnosisAgent(llm LLMProvider, model string, logger *log.Logger) Agent {
	return &extractionAgent{
		kind:      AgentKindDiagnosis,
		llm:       llm,
		model:     model,
		buildFunc: createDiagnosisPrompt,
		logger:    logger,
	}
}
