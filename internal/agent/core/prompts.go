package core

import "fmt"

// createPlanningPrompt builds the single manager call issued over the whole
// document: document-level entities/relations plus proposed cohort analyses,
// each bound to one specialist agent.
func createPlanningPrompt(doc Document) string {
	return fmt.Sprintf(`IMPORTANT: Provide ONLY the requested JSON output without any explanations, introductions, or additional text.
Your response must be a SINGLE JSON code block with triple backticks.

ROLE: You are a manager of a team of extraction agents. You are an expert in OMOP CDM as well as medications and medical diagnoses. Your main task is to extract entities that can exist in OMOP CDM from the provided document and form relationships for building a knowledge graph.

# Task: Knowledge Graph Construction & Agent Selection From Clinical Guideline (By OMOP CDM v5.4)

Analyze this clinical guideline: "%s"

## Extraction Requirements:

1. ENTITIES (Nodes):
   - Extract ALL entities that could exist in the OMOP CDM v5.4 framework from the document
   - Identify all clinically relevant entities from the entire guideline

2. RELATIONS (Edges):
   - Establish relationships between entities found in the guideline
   - Capture temporal, causal, hierarchical, and other relevant relationships

3. COHORT ANALYSES:
   - Propose ALL possible cohort analyses that could be generated from this document
   - For each one select the agent best suited to handle it: "drug_agent" or "diagnosis_agent"
   - Provide a rationale for each selection

## Guideline Text (ANALYZE THE ENTIRE TEXT):
%s

## Your Output JSON Format:

`+"```json"+`
{
    "entities": [
        {
            "concept_name": "entity name following OMOP CDM concept_name",
            "domain": "OMOP CDM domain",
            "attributes": {
                "value": "numeric value if applicable",
                "unit": "unit of measurement if applicable",
                "threshold": "threshold value if applicable"
            }
        }
    ],
    "relations": [
        {
            "source": "source entity name",
            "target": "target entity name",
            "name": "relationship name",
            "evidence": "text from guideline supporting this relationship",
            "certainty": "strong/moderate/weak"
        }
    ],
    "proposed_cohort_analyses": [
        {
            "name": "name of proposed cohort analysis",
            "description": "brief description of the analysis",
            "relevance": "why this analysis is important based on the guideline",
            "selected_agent": "drug_agent or diagnosis_agent",
            "rationale": "detailed explanation for why this agent is best suited for the task"
        }
    ],
    "summarized_text": "A concise summary of the key parts of the guideline that informed your extraction and cohort recommendations. Use exact sentences from the original document without modification."
}
`+"```"+`

IMPORTANT NOTES:
1. ANALYZE THE ENTIRE GUIDELINE TEXT - do not skip any sections
2. Use EXACT OMOP concept_names whenever possible
3. The selected agent must be either "drug_agent" or "diagnosis_agent"
4. Extract only entities, relations, and cohort analyses that are DIRECTLY mentioned or implied in the given text
5. Provide ONLY the requested JSON output without any explanations, introductions, or additional text.`,
		doc.Title, doc.Content)
}

// cohortContext renders the planner's cohort assignment for a specialist
// prompt. Every specialist call is re-grounded in the full original text,
// with the planner's summary only as a guide, so summarization error does
// not compound across calls.
func cohortContext(task CohortTask, doc Document, plan *PlanningResult) string {
	summary := ""
	if plan != nil {
		summary = plan.SummarizedText
	}
	return fmt.Sprintf(`## Current Cohort Analysis Task:
Name: %s
Description: %s
Relevance: %s
Rationale: %s

## Manager Agent Summary (guide only):
%s

## Complete Original Document: "%s"
%s`,
		task.Name, task.Description, task.Relevance, task.Rationale, summary, doc.Title, doc.Content)
}

// createDrugPrompt builds the medication specialist call for one cohort task.
func createDrugPrompt(task CohortTask, doc Document, plan *PlanningResult) string {
	return fmt.Sprintf(`IMPORTANT: Provide ONLY the requested JSON output without any explanations, introductions, or additional text.
Your response must be a SINGLE JSON code block with triple backticks.

ROLE: You are a specialized drug agent with expertise in pharmacology, drug interactions, and medication-related clinical guidelines within the OMOP CDM framework.

# Task: Detailed Cohort Analysis for Drug-Related Clinical Guidelines

%s

ALWAYS refer to the original document content for your primary analysis. Use the manager's summary only as a guide, but perform your own thorough analysis of the original text.

## Analysis Requirements:

1. DRUG ENTITIES:
   - Identify ALL medications, drug classes, and pharmacological agents mentioned in the guideline
   - Map each drug entity to the appropriate OMOP CDM concept_name
   - Extract dosing information, administration routes, frequencies, and durations
   - Identify contraindications, adverse events, and drug interactions

2. DRUG-SPECIFIC RELATIONSHIPS:
   - Determine drug-condition relationships (treats, prevents, causes)
   - Identify drug-drug interactions
   - Map medication management pathways and treatment algorithms
   - Cite specific sections of the original document as evidence

3. COHORT DEFINITIONS:
   - Create detailed cohort definitions focused on medication exposure
   - Specify precise inclusion/exclusion criteria using OMOP CDM concepts
   - Base all criteria on explicit statements in the original document

## Output JSON Format:

`+"```json"+`
{
    "drug_entities": [
        {
            "concept_name": "OMOP CDM drug concept name",
            "drug_class": "pharmacological class if specified",
            "dosing": {
                "amount": "dose amount",
                "unit": "dose unit",
                "frequency": "dosing frequency",
                "route": "administration route",
                "duration": "treatment duration"
            },
            "indications": ["condition for which the drug is indicated"],
            "contraindications": ["condition where the drug should not be used"],
            "adverse_events": ["potential side effects or adverse reactions"],
            "evidence_level": "high/moderate/low",
            "source_text": "text from guideline mentioning this drug"
        }
    ],
    "drug_relationships": [
        {
            "source_drug": "source drug concept_name",
            "target_entity": "target entity (drug or condition) concept_name",
            "relationship_type": "treats/prevents/interacts_with/etc.",
            "details": "specific details about the relationship",
            "certainty": "high/moderate/low",
            "evidence": "text from guideline supporting this relationship"
        }
    ],
    "treatment_pathways": [
        {
            "name": "name of treatment pathway",
            "description": "description of the treatment algorithm or pathway",
            "steps": [
                {
                    "order": "step number in sequence",
                    "intervention": "drug or procedure concept_name",
                    "condition": "condition to be addressed",
                    "decision_points": "criteria for moving to next step",
                    "alternatives": "alternative options at this step"
                }
            ],
            "evidence_level": "high/moderate/low"
        }
    ],
    "medication_cohorts": [
        {
            "name": "medication-focused cohort name",
            "description": "detailed description of cohort purpose",
            "target_population": "population for which this treatment is relevant",
            "inclusion_criteria": [
                {"criterion": "inclusion criterion using OMOP concept_name", "time_window": "relevant time window if applicable"}
            ],
            "exclusion_criteria": [
                {"criterion": "exclusion criterion using OMOP concept_name", "time_window": "relevant time window if applicable"}
            ]
        }
    ],
    "detailed_analysis": "A comprehensive analysis of all drug-related aspects of the document, specific to the current cohort focus area."
}
`+"```"+`

IMPORTANT NOTES:
1. Focus specifically on the current cohort analysis task when extracting information
2. Include only medications, relationships, and cohort criteria that are explicitly mentioned in the document
3. Provide source evidence from the original text for all entities and relationships`,
		cohortContext(task, doc, plan))
}

// createDiagnosisPrompt builds the condition specialist call for one cohort task.
func createDiagnosisPrompt(task CohortTask, doc Document, plan *PlanningResult) string {
	return fmt.Sprintf(`IMPORTANT: Provide ONLY the requested JSON output without any explanations, introductions, or additional text.
Your response must be a SINGLE JSON code block with triple backticks.

ROLE: You are a specialized diagnosis agent with expertise in clinical conditions, diagnostic criteria, and disease-related clinical guidelines within the OMOP CDM framework.

# Task: Detailed Cohort Analysis for Disease and Diagnostic-Related Clinical Guidelines

%s

ALWAYS refer to the original document content for your primary analysis. Use the manager's summary only as a guide, but perform your own thorough analysis of the original text.

## Analysis Requirements:

1. CONDITION ENTITIES:
   - Identify ALL diseases, disorders, and clinical conditions mentioned in the guideline
   - Map each condition to the appropriate OMOP CDM concept_name
   - Extract severity levels, staging systems, risk factors, and complications

2. CONDITION-SPECIFIC RELATIONSHIPS:
   - Determine condition-condition relationships (causes, complicates)
   - Map diagnostic algorithms and disease management pathways
   - Cite specific sections of the original document as evidence

3. COHORT DEFINITIONS:
   - Create detailed cohort definitions focused on disease states and conditions
   - Define condition occurrence parameters, severity thresholds, and temporal constraints
   - Base all criteria on explicit statements in the original document

## Output JSON Format:

`+"```json"+`
{
    "condition_entities": [
        {
            "concept_name": "OMOP CDM condition concept name",
            "condition_category": "disease category if specified",
            "severity": "severity levels if mentioned",
            "staging": {
                "system": "staging or classification system name",
                "stage_value": "specific stage",
                "criteria": "criteria for this staging"
            },
            "risk_factors": ["factors that increase risk for this condition"],
            "complications": ["conditions that can result from this condition"],
            "evidence_level": "high/moderate/low",
            "source_text": "text from guideline mentioning this condition"
        }
    ],
    "condition_relationships": [
        {
            "source_condition": "source condition concept_name",
            "target_entity": "target entity (condition or procedure) concept_name",
            "relationship_type": "causes/complicates/diagnosed_by/etc.",
            "details": "specific details about the relationship",
            "certainty": "high/moderate/low",
            "evidence": "text from guideline supporting this relationship"
        }
    ],
    "diagnostic_pathways": [
        {
            "name": "name of diagnostic pathway",
            "description": "description of the diagnostic algorithm or pathway",
            "steps": [
                {
                    "order": "step number in sequence",
                    "test": "diagnostic test or assessment concept_name",
                    "target_condition": "condition being assessed",
                    "decision_points": "criteria for moving to next step",
                    "alternatives": "alternative diagnostic options at this step"
                }
            ],
            "evidence_level": "high/moderate/low"
        }
    ],
    "condition_cohorts": [
        {
            "name": "condition-focused cohort name",
            "description": "detailed description of cohort purpose",
            "target_population": "population for which this condition is relevant",
            "inclusion_criteria": [
                {"criterion": "inclusion criterion using OMOP concept_name", "time_window": "relevant time window if applicable"}
            ],
            "exclusion_criteria": [
                {"criterion": "exclusion criterion using OMOP concept_name", "time_window": "relevant time window if applicable"}
            ]
        }
    ],
    "detailed_analysis": "A comprehensive analysis of all condition-related aspects of the document, specific to the current cohort focus area."
}
`+"```"+`

IMPORTANT NOTES:
1. Focus specifically on the current cohort analysis task when extracting information
2. Include only conditions, relationships, and cohort criteria that are explicitly mentioned in the document
3. Provide source evidence from the original text for all entities and relationships`,
		cohortContext(task, doc, plan))
}
