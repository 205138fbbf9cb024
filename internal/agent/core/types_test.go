package core

import (
	"encoding/json"
	"testing"
	"time"
)

func artifactResult() *RunResult {
	return &RunResult{
		RunID:         "run-artifact-1",
		DocumentID:    "doc-1",
		DocumentTitle: "Type 2 Diabetes Management",
		KnowledgeGraph: KnowledgeGraph{
			Nodes: map[string]KnowledgeNode{
				"Metformin": {ID: "Metformin", Label: "Metformin", Category: "drug"},
				"Type 2 diabetes mellitus": {
					ID:       "Type 2 diabetes mellitus",
					Label:    "Type 2 diabetes mellitus",
					Category: "condition",
				},
			},
			Edges: []KnowledgeEdge{
				{Source: "Metformin", Target: "Type 2 diabetes mellitus", Type: "treats", Certainty: "high"},
			},
		},
		CohortAnalysis: []CohortTask{
			{
				ID:          "c1",
				Name:        "metformin initiation",
				Description: "first-line therapy cohort",
				AgentKind:   AgentKindDrug,
				Rationale:   "drug dosing focus",
				Status:      TaskCompleted,
			},
		},
		ProcessingTimestamp: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func TestRunResultArtifactShape(t *testing.T) {
	data, err := json.Marshal(artifactResult())
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}

	var artifact map[string]json.RawMessage
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	for _, key := range []string{"knowledge_graph", "cohort_analysis", "detailed_results", "processing_timestamp"} {
		if _, ok := artifact[key]; !ok {
			t.Fatalf("artifact missing %q key", key)
		}
	}

	var graph map[string]json.RawMessage
	if err := json.Unmarshal(artifact["knowledge_graph"], &graph); err != nil {
		t.Fatalf("unmarshal knowledge_graph: %v", err)
	}
	if _, ok := graph["entities"]; !ok {
		t.Fatalf("knowledge_graph missing entities key, has %v", keysOf(graph))
	}
	if _, ok := graph["relations"]; !ok {
		t.Fatalf("knowledge_graph missing relations key, has %v", keysOf(graph))
	}
	if _, ok := graph["nodes"]; ok {
		t.Fatalf("knowledge_graph must not expose the internal nodes map")
	}

	var entities []KnowledgeNode
	if err := json.Unmarshal(graph["entities"], &entities); err != nil {
		t.Fatalf("unmarshal entities: %v", err)
	}
	if len(entities) != 2 || entities[0].ID != "Metformin" {
		t.Fatalf("entities must list nodes sorted by id, got %+v", entities)
	}

	var cohorts []map[string]json.RawMessage
	if err := json.Unmarshal(artifact["cohort_analysis"], &cohorts); err != nil {
		t.Fatalf("unmarshal cohort_analysis: %v", err)
	}
	if len(cohorts) != 1 {
		t.Fatalf("expected 1 cohort entry, got %d", len(cohorts))
	}
	var selected string
	if err := json.Unmarshal(cohorts[0]["selected_agent"], &selected); err != nil {
		t.Fatalf("cohort entry lacks selected_agent: %v", err)
	}
	if selected != string(AgentKindDrug) {
		t.Fatalf("unexpected selected_agent %q", selected)
	}
	if _, ok := cohorts[0]["agent_kind"]; ok {
		t.Fatalf("cohort entry must not carry agent_kind")
	}
}

func TestKnowledgeGraphRoundTrip(t *testing.T) {
	original := artifactResult().KnowledgeGraph

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}

	var restored KnowledgeGraph
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}
	if len(restored.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(restored.Nodes))
	}
	node, ok := restored.Nodes["Metformin"]
	if !ok || node.Category != "drug" {
		t.Fatalf("node map not rebuilt from entities: %+v", restored.Nodes)
	}
	if len(restored.Edges) != 1 || restored.Edges[0].Type != "treats" {
		t.Fatalf("relations not restored: %+v", restored.Edges)
	}
}

func TestKnowledgeGraphEmptyRelationsAreNotNull(t *testing.T) {
	graph := KnowledgeGraph{
		Nodes: map[string]KnowledgeNode{
			"Metformin": {ID: "Metformin", Label: "Metformin"},
		},
	}
	data, err := json.Marshal(graph)
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal graph: %v", err)
	}
	if string(raw["relations"]) != "[]" {
		t.Fatalf("empty relations must serialize as [], got %s", raw["relations"])
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
