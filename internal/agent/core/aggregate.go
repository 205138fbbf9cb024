package core

import (
	"fmt"
	"log"
)

// Aggregator merges finalized extraction results into one de-duplicated
// knowledge graph. It runs once, after the scheduler is done; no partial
// or interleaved merges occur.
type Aggregator struct {
	logger *log.Logger
}

func NewAggregator(logger *log.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate walks results in completion order. Nodes are keyed by exact
// concept name and edges by the (source, target, type) triple, both under
// first-seen-wins: later duplicates are dropped, never merged or updated.
// Edges whose endpoint was never surfaced as an entity are dropped and
// logged rather than inserted dangling, so every edge in the output
// references an existing node. Aggregation is a pure function of its
// input: running it twice on the same results yields the same graph.
func (a *Aggregator) Aggregate(results []ExtractionResult) (KnowledgeGraph, int) {
	graph := KnowledgeGraph{
		Nodes: make(map[string]KnowledgeNode),
		Edges: make([]KnowledgeEdge, 0),
	}

	for _, result := range results {
		for _, entity := range result.Entities {
			if entity.ConceptName == "" {
				continue
			}
			if _, seen := graph.Nodes[entity.ConceptName]; seen {
				continue
			}
			graph.Nodes[entity.ConceptName] = KnowledgeNode{
				ID:         entity.ConceptName,
				Label:      entity.ConceptName,
				Category:   entity.Category,
				Attributes: entity.Attributes,
				SourceText: entity.SourceText,
			}
		}
	}

	seenEdges := make(map[string]bool)
	dropped := 0
	for _, result := range results {
		for _, rel := range result.Relationships {
			if rel.Source == "" || rel.Target == "" || rel.Type == "" {
				continue
			}
			key := fmt.Sprintf("%s|%s|%s", rel.Source, rel.Target, rel.Type)
			if seenEdges[key] {
				continue
			}
			seenEdges[key] = true

			_, sourceOK := graph.Nodes[rel.Source]
			_, targetOK := graph.Nodes[rel.Target]
			if !sourceOK || !targetOK {
				dropped++
				a.logger.Printf("dropping edge %s -[%s]-> %s: endpoint never extracted as an entity",
					rel.Source, rel.Type, rel.Target)
				continue
			}

			graph.Edges = append(graph.Edges, KnowledgeEdge{
				Source:    rel.Source,
				Target:    rel.Target,
				Type:      rel.Type,
				Evidence:  rel.Evidence,
				Certainty: rel.Certainty,
			})
		}
	}

	a.logger.Printf("aggregated %d results into %d nodes, %d edges (%d edges dropped)",
		len(results), len(graph.Nodes), len(graph.Edges), dropped)
	return graph, dropped
}

// PlanBaseline converts the planner's document-level entities and relations
// into an extraction result so they enter aggregation ahead of the
// specialist results. First-seen-wins then gives the document-level view
// priority on duplicate concept names.
func PlanBaseline(plan *PlanningResult) ExtractionResult {
	result := ExtractionResult{
		CohortTaskID: "document",
		Entities:     make([]Entity, 0, len(plan.Entities)),
	}
	for _, entity := range plan.Entities {
		if entity.ConceptName == "" {
			continue
		}
		result.Entities = append(result.Entities, Entity{
			ConceptName: entity.ConceptName,
			Category:    entity.Domain,
			Attributes:  entity.Attributes,
		})
	}
	for _, rel := range plan.Relations {
		result.Relationships = append(result.Relationships, Relationship{
			Source:    rel.Source,
			Target:    rel.Target,
			Type:      rel.Name,
			Evidence:  rel.Evidence,
			Certainty: rel.Certainty,
		})
	}
	return result
}
