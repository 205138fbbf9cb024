package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Planner reads the whole document once and proposes the cohort task list.
// Its single call is not retried: with no plan there is no useful work, so
// an unparsable planning response fails the run immediately.
type Planner struct {
	llm    LLMProvider
	model  string
	logger *log.Logger
}

// NewPlanner creates a planner bound to one routing model.
func NewPlanner(llm LLMProvider, model string, logger *log.Logger) *Planner {
	return &Planner{llm: llm, model: model, logger: logger}
}

// Plan issues the manager call over the full document and promotes each
// proposed cohort analysis to a CohortTask. Proposals naming an unknown
// agent are skipped and logged rather than promoted; a plan that yields
// zero dispatchable tasks is a planning failure.
func (p *Planner) Plan(ctx context.Context, doc Document) (*PlanningResult, []CohortTask, error) {
	startTime := time.Now()
	p.logger.Printf("planning document %q (%d chars)", doc.Title, len(doc.Content))

	prompt := createPlanningPrompt(doc)
	text, inputTokens, outputTokens, err := p.llm.GenerateWithTokens(ctx, prompt, p.model, nil)
	if err != nil {
		return nil, nil, &PlanningError{Err: fmt.Errorf("llm call: %w", err)}
	}

	plan, err := p.parsePlanningResponse(text)
	if err != nil {
		return nil, nil, &PlanningError{Err: err}
	}
	plan.ModelUsed = p.model
	plan.TokensUsed = inputTokens + outputTokens
	plan.CostEstimate = p.llm.CalculateCost(inputTokens, outputTokens, p.model)

	tasks := p.buildTasks(plan)
	if len(tasks) == 0 {
		return nil, nil, &PlanningError{Err: fmt.Errorf("plan produced no dispatchable cohort tasks")}
	}

	p.logger.Printf("planning complete in %v: %d entities, %d relations, %d cohort tasks",
		time.Since(startTime), len(plan.Entities), len(plan.Relations), len(tasks))
	return plan, tasks, nil
}

// parsePlanningResponse normalizes the raw model text and decodes it into
// the planning shape. Unknown top-level keys are ignored.
func (p *Planner) parsePlanningResponse(text string) (*PlanningResult, error) {
	parsed, err := Normalize(text)
	if err != nil {
		return nil, fmt.Errorf("parsing planning response: %w", err)
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("re-encoding planning response: %w", err)
	}
	var plan PlanningResult
	if err := json.Unmarshal(encoded, &plan); err != nil {
		return nil, fmt.Errorf("decoding planning response: %w", err)
	}
	return &plan, nil
}

func (p *Planner) buildTasks(plan *PlanningResult) []CohortTask {
	now := time.Now()
	tasks := make([]CohortTask, 0, len(plan.ProposedCohorts))
	for _, cohort := range plan.ProposedCohorts {
		kind, ok := ParseAgentKind(cohort.SelectedAgent)
		if !ok {
			p.logger.Printf("skipping cohort %q: unknown agent %q", cohort.Name, cohort.SelectedAgent)
			continue
		}
		if cohort.Name == "" {
			p.logger.Printf("skipping unnamed cohort proposal for agent %s", kind)
			continue
		}
		tasks = append(tasks, CohortTask{
			ID:          uuid.New().String(),
			Name:        cohort.Name,
			Description: cohort.Description,
			Relevance:   cohort.Relevance,
			AgentKind:   kind,
			Rationale:   cohort.Rationale,
			Status:      TaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return tasks
}
