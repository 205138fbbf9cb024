package core

import "fmt"

// PlanningError means the planner's single LLM call could not be executed
// or its output was irreparable. Fatal for the run: no useful work can
// proceed without a plan.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// AgentCallError means a specialist agent's LLM call failed. The scheduler
// treats it as a retryable validation failure, never as a run abort.
type AgentCallError struct {
	TaskID string
	Kind   AgentKind
	Err    error
}

func (e *AgentCallError) Error() string {
	return fmt.Sprintf("agent %s call failed for task %s: %v", e.Kind, e.TaskID, e.Err)
}

func (e *AgentCallError) Unwrap() error { return e.Err }

// NormalizationError means raw LLM text could not be parsed as JSON after
// all repair attempts. Carries the original text for diagnostics.
type NormalizationError struct {
	Raw string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("response not parseable as JSON: %v", e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// SinkError means a result sink failed to persist the run artifact. Fatal
// for the run, but the in-memory graph is still returned to the caller so
// no work is silently lost.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s failed: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
