package core

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultMaxRetries bounds how many times one cohort task is re-attempted
// after a failed validation before it is marked Failed.
const DefaultMaxRetries = 3

// Scheduler is the orchestration core: a sequential state machine that pops
// cohort tasks, dispatches each to its specialist agent, normalizes and
// validates the output, and either finalizes the task or requeues it for
// retry. Exactly one task is in flight at a time, and a task's retries are
// exhausted before the next task starts. Per-cohort failures never
// propagate past the scheduler; exhausting retries fails only that cohort.
type Scheduler struct {
	agents     map[AgentKind]Agent
	maxRetries int
	logger     *log.Logger
}

// NewScheduler creates a scheduler over a closed agent variant map. Routing
// is resolved once here, not per dispatch. maxRetries <= 0 falls back to
// DefaultMaxRetries.
func NewScheduler(agents map[AgentKind]Agent, maxRetries int, logger *log.Logger) *Scheduler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Scheduler{agents: agents, maxRetries: maxRetries, logger: logger}
}

// Run drains the task queue in planner order. A retried task goes back to
// the front of the queue so a cohort's retry loop finishes before other
// cohorts proceed. Returns every task in its terminal state plus the
// retained extraction results in completion order.
func (s *Scheduler) Run(ctx context.Context, doc Document, plan *PlanningResult, tasks []CohortTask) ([]CohortTask, []ExtractionResult) {
	queue := append([]CohortTask(nil), tasks...)
	finalized := make([]CohortTask, 0, len(tasks))
	results := make([]ExtractionResult, 0, len(tasks))

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			for i := range queue {
				queue[i].Status = TaskFailed
				queue[i].LastErrors = []string{fmt.Sprintf("run cancelled: %v", err)}
				queue[i].UpdatedAt = time.Now()
			}
			finalized = append(finalized, queue...)
			break
		}

		task := queue[0]
		queue = queue[1:]
		task.Status = TaskInProgress
		task.UpdatedAt = time.Now()

		parsed, usage, attemptErr := s.attempt(ctx, task, doc, plan)
		outcome := Validate(task, parsed, attemptErr)

		switch {
		case outcome.Status == ValidationValid:
			results = append(results, *s.finalize(&task, parsed, usage, nil))
			finalized = append(finalized, task)

		case outcome.CanRetry && task.Retries < s.maxRetries:
			task.Retries++
			task.Status = TaskPending
			task.LastErrors = outcome.Errors
			task.UpdatedAt = time.Now()
			s.logger.Printf("cohort %q attempt failed (%s), retry %d/%d: %v",
				task.Name, outcome.Status, task.Retries, s.maxRetries, outcome.Errors)
			queue = append([]CohortTask{task}, queue...)

		case outcome.Status == ValidationNeedsReview && parsed != nil:
			// Retries are spent but the output is structurally sound:
			// accept it as a degraded result rather than losing the cohort.
			s.logger.Printf("cohort %q accepted as degraded result after %d retries", task.Name, task.Retries)
			results = append(results, *s.finalize(&task, parsed, usage, outcome.Errors))
			finalized = append(finalized, task)

		default:
			task.Status = TaskFailed
			task.LastErrors = outcome.Errors
			task.UpdatedAt = time.Now()
			s.logger.Printf("cohort %q failed after %d retries: %v", task.Name, task.Retries, outcome.Errors)
			finalized = append(finalized, task)
		}
	}

	return finalized, results
}

// attempt performs one dispatch-normalize cycle. An agent call failure and
// a normalization failure are equivalent here: both surface as an error for
// the validation gate, with no parsed payload.
func (s *Scheduler) attempt(ctx context.Context, task CohortTask, doc Document, plan *PlanningResult) (map[string]interface{}, RawAgentOutput, error) {
	agent, ok := s.agents[task.AgentKind]
	if !ok {
		return nil, RawAgentOutput{}, fmt.Errorf("no agent registered for kind %q", task.AgentKind)
	}

	raw, err := agent.Extract(ctx, task, doc, plan)
	if err != nil {
		return nil, RawAgentOutput{}, err
	}

	parsed, err := Normalize(raw.Text)
	if err != nil {
		return nil, raw, err
	}
	return parsed, raw, nil
}

func (s *Scheduler) finalize(task *CohortTask, parsed map[string]interface{}, usage RawAgentOutput, degradedErrors []string) *ExtractionResult {
	task.Status = TaskCompleted
	task.LastErrors = degradedErrors
	task.UpdatedAt = time.Now()

	result := DecodeExtraction(*task, parsed)
	result.ModelUsed = usage.Model
	result.TokensUsed = usage.InputTokens + usage.OutputTokens
	result.CostEstimate = usage.Cost
	s.logger.Printf("cohort %q completed: %d entities, %d relationships",
		task.Name, len(result.Entities), len(result.Relationships))
	return result
}
