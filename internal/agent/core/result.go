package core

import (
	"fmt"
	"strings"
	"time"
)

// DecodeExtraction converts a validated agent payload into the unified
// ExtractionResult shape. The drug and diagnosis payloads carry the same
// information under different key names; this is the single place where
// that mapping lives.
func DecodeExtraction(task CohortTask, parsed map[string]interface{}) *ExtractionResult {
	result := &ExtractionResult{
		CohortTaskID: task.ID,
		AgentKind:    task.AgentKind,
		ProducedAt:   time.Now(),
	}
	if result.DetailedAnalysis = asString(parsed["detailed_analysis"]); result.DetailedAnalysis == "" {
		result.DetailedAnalysis = asString(parsed["analysis"])
	}

	switch task.AgentKind {
	case AgentKindDrug:
		result.Entities = decodeDrugEntities(asList(parsed["drug_entities"]))
		result.Relationships = decodeRelationships(asList(parsed["drug_relationships"]), "source_drug")
		result.Pathways = decodePathways(asList(parsed["treatment_pathways"]), "intervention", "condition")
		result.CohortDefinitions = decodeCohorts(asList(parsed["medication_cohorts"]))
	case AgentKindDiagnosis:
		result.Entities = decodeConditionEntities(asList(parsed["condition_entities"]))
		result.Relationships = decodeRelationships(asList(parsed["condition_relationships"]), "source_condition")
		result.Pathways = decodePathways(asList(parsed["diagnostic_pathways"]), "test", "target_condition")
		result.CohortDefinitions = decodeCohorts(asList(parsed["condition_cohorts"]))
	}
	return result
}

func decodeDrugEntities(items []map[string]interface{}) []Entity {
	entities := make([]Entity, 0, len(items))
	for _, item := range items {
		name := asString(item["concept_name"])
		if name == "" {
			continue
		}
		attrs := map[string]string{}
		for key, value := range asMap(item["dosing"]) {
			if s := asString(value); s != "" {
				attrs["dosing_"+key] = s
			}
		}
		putAttr(attrs, "evidence_level", item["evidence_level"])
		putJoined(attrs, "indications", item["indications"])
		putJoined(attrs, "contraindications", item["contraindications"])
		putJoined(attrs, "adverse_events", item["adverse_events"])
		entities = append(entities, Entity{
			ConceptName: name,
			Category:    firstNonEmpty(asString(item["drug_class"]), "drug"),
			Attributes:  attrs,
			SourceText:  asString(item["source_text"]),
		})
	}
	return entities
}

func decodeConditionEntities(items []map[string]interface{}) []Entity {
	entities := make([]Entity, 0, len(items))
	for _, item := range items {
		name := asString(item["concept_name"])
		if name == "" {
			continue
		}
		attrs := map[string]string{}
		putAttr(attrs, "severity", item["severity"])
		putAttr(attrs, "evidence_level", item["evidence_level"])
		putJoined(attrs, "risk_factors", item["risk_factors"])
		putJoined(attrs, "complications", item["complications"])
		for key, value := range asMap(item["staging"]) {
			if s := asString(value); s != "" {
				attrs["staging_"+key] = s
			}
		}
		entities = append(entities, Entity{
			ConceptName: name,
			Category:    firstNonEmpty(asString(item["condition_category"]), "condition"),
			Attributes:  attrs,
			SourceText:  asString(item["source_text"]),
		})
	}
	return entities
}

func decodeRelationships(items []map[string]interface{}, sourceKey string) []Relationship {
	rels := make([]Relationship, 0, len(items))
	for _, item := range items {
		source := asString(item[sourceKey])
		if source == "" {
			source = asString(item["source"])
		}
		target := asString(item["target_entity"])
		if target == "" {
			target = asString(item["target"])
		}
		relType := asString(item["relationship_type"])
		if relType == "" {
			relType = asString(item["name"])
		}
		if source == "" || target == "" || relType == "" {
			continue
		}
		evidence := asString(item["evidence"])
		if details := asString(item["details"]); details != "" && evidence == "" {
			evidence = details
		}
		rels = append(rels, Relationship{
			Source:    source,
			Target:    target,
			Type:      relType,
			Evidence:  evidence,
			Certainty: asString(item["certainty"]),
		})
	}
	return rels
}

func decodePathways(items []map[string]interface{}, interventionKey, conditionKey string) []Pathway {
	pathways := make([]Pathway, 0, len(items))
	for _, item := range items {
		name := asString(item["name"])
		if name == "" {
			continue
		}
		steps := asList(item["steps"])
		decoded := make([]PathwayStep, 0, len(steps))
		for _, step := range steps {
			decoded = append(decoded, PathwayStep{
				Order:          asString(step["order"]),
				Intervention:   asString(step[interventionKey]),
				Condition:      asString(step[conditionKey]),
				DecisionPoints: asString(step["decision_points"]),
				Alternatives:   asString(step["alternatives"]),
			})
		}
		pathways = append(pathways, Pathway{
			Name:          name,
			Description:   asString(item["description"]),
			Steps:         decoded,
			EvidenceLevel: asString(item["evidence_level"]),
		})
	}
	return pathways
}

func decodeCohorts(items []map[string]interface{}) []CohortDefinition {
	cohorts := make([]CohortDefinition, 0, len(items))
	for _, item := range items {
		name := asString(item["name"])
		if name == "" {
			continue
		}
		cohorts = append(cohorts, CohortDefinition{
			Name:              name,
			Description:       asString(item["description"]),
			TargetPopulation:  asString(item["target_population"]),
			InclusionCriteria: decodeCriteria(asList(item["inclusion_criteria"])),
			ExclusionCriteria: decodeCriteria(asList(item["exclusion_criteria"])),
		})
	}
	return cohorts
}

func decodeCriteria(items []map[string]interface{}) []CohortCriterion {
	criteria := make([]CohortCriterion, 0, len(items))
	for _, item := range items {
		criterion := asString(item["criterion"])
		if criterion == "" {
			continue
		}
		criteria = append(criteria, CohortCriterion{
			Criterion:  criterion,
			TimeWindow: asString(item["time_window"]),
		})
	}
	return criteria
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return value.String()
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", value))
	}
}

func asList(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, element := range raw {
		if m, ok := element.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, element := range raw {
		if s := asString(element); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func putAttr(attrs map[string]string, key string, value interface{}) {
	if s := asString(value); s != "" {
		attrs[key] = s
	}
}

func putJoined(attrs map[string]string, key string, value interface{}) {
	if items := asStringSlice(value); len(items) > 0 {
		attrs[key] = strings.Join(items, "; ")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
