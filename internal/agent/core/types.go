package core

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Document is an immutable guideline input for one processing run.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// AgentKind identifies which specialist extraction agent handles a cohort.
type AgentKind string

const (
	AgentKindDrug      AgentKind = "drug_agent"
	AgentKindDiagnosis AgentKind = "diagnosis_agent"
)

// ParseAgentKind maps a planner-emitted agent tag to a known AgentKind.
// Routing happens through this closed set only; unknown tags are rejected
// at planning time rather than surfacing as dispatch failures later.
func ParseAgentKind(s string) (AgentKind, bool) {
	switch AgentKind(s) {
	case AgentKindDrug, AgentKindDiagnosis:
		return AgentKind(s), true
	}
	return "", false
}

// TaskStatus is the lifecycle state of a CohortTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// CohortTask is one unit of work produced by the planner: a named cohort
// focus area bound to exactly one specialist agent. The scheduler owns all
// status and retry transitions; tasks are never deleted, only transitioned.
type CohortTask struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Relevance   string     `json:"relevance,omitempty"`
	AgentKind   AgentKind  `json:"selected_agent"`
	Rationale   string     `json:"rationale,omitempty"`
	Status      TaskStatus `json:"status"`
	Retries     int        `json:"retries"`
	LastErrors  []string   `json:"last_errors,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Entity is one extracted clinical concept. ConceptName is the identity key
// for de-duplication: exact string match, no case folding or synonym
// resolution.
type Entity struct {
	ConceptName string            `json:"concept_name"`
	Category    string            `json:"category,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	SourceText  string            `json:"source_text,omitempty"`
}

// Relationship links two entities by concept name. Identity for
// de-duplication is the (Source, Target, Type) triple.
type Relationship struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	Evidence  string `json:"evidence,omitempty"`
	Certainty string `json:"certainty,omitempty"`
}

// PathwayStep is one ordered step inside a treatment or diagnostic pathway.
type PathwayStep struct {
	Order          string `json:"order,omitempty"`
	Intervention   string `json:"intervention,omitempty"`
	Condition      string `json:"condition,omitempty"`
	DecisionPoints string `json:"decision_points,omitempty"`
	Alternatives   string `json:"alternatives,omitempty"`
}

// Pathway is a treatment algorithm or diagnostic sequence extracted from
// the guideline.
type Pathway struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Steps         []PathwayStep `json:"steps,omitempty"`
	EvidenceLevel string        `json:"evidence_level,omitempty"`
}

// CohortCriterion is one inclusion or exclusion rule in a cohort definition.
type CohortCriterion struct {
	Criterion  string `json:"criterion"`
	TimeWindow string `json:"time_window,omitempty"`
}

// CohortDefinition is a specialist agent's proposed study cohort, with
// OMOP-style inclusion/exclusion criteria.
type CohortDefinition struct {
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	TargetPopulation  string            `json:"target_population,omitempty"`
	InclusionCriteria []CohortCriterion `json:"inclusion_criteria,omitempty"`
	ExclusionCriteria []CohortCriterion `json:"exclusion_criteria,omitempty"`
}

// ExtractionResult is the normalized output of one successful extraction
// attempt. Immutable once created; only the latest attempt per task is
// retained.
type ExtractionResult struct {
	CohortTaskID      string             `json:"cohort_task_id"`
	AgentKind         AgentKind          `json:"agent_kind"`
	Entities          []Entity           `json:"entities"`
	Relationships     []Relationship     `json:"relationships"`
	Pathways          []Pathway          `json:"pathways,omitempty"`
	CohortDefinitions []CohortDefinition `json:"cohort_definitions,omitempty"`
	DetailedAnalysis  string             `json:"detailed_analysis,omitempty"`
	ModelUsed         string             `json:"model_used,omitempty"`
	TokensUsed        int64              `json:"tokens_used,omitempty"`
	CostEstimate      float64            `json:"cost_estimate,omitempty"`
	ProducedAt        time.Time          `json:"produced_at"`
}

// ValidationStatus is the verdict of the validation gate on one attempt.
type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "valid"
	ValidationNeedsReview ValidationStatus = "needs_review"
	ValidationInvalid     ValidationStatus = "invalid"
)

// ValidationOutcome is produced fresh on every validation pass and drives
// the scheduler's retry/finalize decision. Never persisted.
type ValidationOutcome struct {
	Status   ValidationStatus `json:"status"`
	Errors   []string         `json:"errors,omitempty"`
	CanRetry bool             `json:"can_retry"`
}

// ProposedCohort is one cohort analysis suggested by the planner before it
// is promoted to a CohortTask.
type ProposedCohort struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Relevance     string `json:"relevance,omitempty"`
	SelectedAgent string `json:"selected_agent"`
	Rationale     string `json:"rationale,omitempty"`
}

// PlanEntity is a document-level entity as the planner emits it.
type PlanEntity struct {
	ConceptName string            `json:"concept_name"`
	Domain      string            `json:"domain,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// PlanRelation is a document-level relationship as the planner emits it.
// The relationship label arrives under "name" rather than "type".
type PlanRelation struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Name      string `json:"name"`
	Evidence  string `json:"evidence,omitempty"`
	Certainty string `json:"certainty,omitempty"`
}

// PlanningResult is the planner's single-call output over the whole
// document: document-level entities/relations plus the proposed cohorts.
type PlanningResult struct {
	Entities        []PlanEntity     `json:"entities"`
	Relations       []PlanRelation   `json:"relations"`
	ProposedCohorts []ProposedCohort `json:"proposed_cohort_analyses"`
	SummarizedText  string           `json:"summarized_text,omitempty"`
	ModelUsed       string           `json:"model_used,omitempty"`
	TokensUsed      int64            `json:"tokens_used,omitempty"`
	CostEstimate    float64          `json:"cost_estimate,omitempty"`
}

// KnowledgeNode is one de-duplicated entity in the final graph. ID equals
// the entity's ConceptName.
type KnowledgeNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Category   string            `json:"category,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	SourceText string            `json:"source_text,omitempty"`
	Unverified bool              `json:"unverified,omitempty"`
}

// KnowledgeEdge is one de-duplicated relationship in the final graph. Both
// endpoints always reference existing node IDs.
type KnowledgeEdge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	Evidence  string `json:"evidence,omitempty"`
	Certainty string `json:"certainty,omitempty"`
}

// KnowledgeGraph is the aggregator's final artifact for one run. The node
// map is keyed by concept name in memory; on the wire the graph is an
// entities list plus relations, the shape the output artifact requires.
type KnowledgeGraph struct {
	Nodes map[string]KnowledgeNode
	Edges []KnowledgeEdge
}

type graphArtifact struct {
	Entities  []KnowledgeNode `json:"entities"`
	Relations []KnowledgeEdge `json:"relations"`
}

func (g KnowledgeGraph) MarshalJSON() ([]byte, error) {
	entities := make([]KnowledgeNode, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		entities = append(entities, node)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	relations := g.Edges
	if relations == nil {
		relations = []KnowledgeEdge{}
	}
	return json.Marshal(graphArtifact{Entities: entities, Relations: relations})
}

func (g *KnowledgeGraph) UnmarshalJSON(data []byte) error {
	var artifact graphArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return err
	}
	g.Nodes = make(map[string]KnowledgeNode, len(artifact.Entities))
	for _, node := range artifact.Entities {
		g.Nodes[node.ID] = node
	}
	g.Edges = artifact.Relations
	return nil
}

// RunStats summarizes one processing run for the output artifact.
type RunStats struct {
	TotalCohorts     int           `json:"total_cohorts"`
	CompletedCohorts int           `json:"completed_cohorts"`
	FailedCohorts    int           `json:"failed_cohorts"`
	TotalNodes       int           `json:"total_nodes"`
	TotalEdges       int           `json:"total_edges"`
	DroppedEdges     int           `json:"dropped_edges"`
	TotalTokens      int64         `json:"total_tokens"`
	TotalCost        float64       `json:"total_cost"`
	Duration         time.Duration `json:"duration"`
}

// RunResult is the complete output artifact of one document run, written
// to the configured sinks and returned to the caller.
type RunResult struct {
	RunID               string             `json:"run_id"`
	DocumentID          string             `json:"document_id"`
	DocumentTitle       string             `json:"document_title"`
	KnowledgeGraph      KnowledgeGraph     `json:"knowledge_graph"`
	CohortAnalysis      []CohortTask       `json:"cohort_analysis"`
	DetailedResults     []ExtractionResult `json:"detailed_results"`
	SummarizedText      string             `json:"summarized_text,omitempty"`
	Stats               RunStats           `json:"stats"`
	ProcessingTimestamp time.Time          `json:"processing_timestamp"`
}

// LLMProvider interface defines the contract for LLM providers
type LLMProvider interface {
	// Generate generates text using the LLM
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns available models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
}

// RawAgentOutput carries one attempt's unmodified model text together with
// its usage accounting.
type RawAgentOutput struct {
	Text         string  `json:"text"`
	Model        string  `json:"model"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Agent is the capability interface every specialist extraction agent
// implements. Extract builds the domain prompt from the task plus the full
// original document, issues one LLM call and returns the raw model text
// unchanged. Agents carry no state across calls; each invocation is
// independent and retry-safe.
type Agent interface {
	Kind() AgentKind
	Extract(ctx context.Context, task CohortTask, doc Document, plan *PlanningResult) (RawAgentOutput, error)
}

// Sink persists a finished RunResult. Implementations must be idempotent
// with respect to the run ID.
type Sink interface {
	Name() string
	Write(ctx context.Context, result *RunResult) error
}
