package core

import (
	"fmt"
	"testing"
)

func drugTask() CohortTask {
	return CohortTask{ID: "t1", Name: "metformin therapy", AgentKind: AgentKindDrug}
}

func TestValidateAttemptErrorIsRetryableInvalid(t *testing.T) {
	outcome := Validate(drugTask(), nil, fmt.Errorf("llm unavailable"))
	if outcome.Status != ValidationInvalid {
		t.Fatalf("expected Invalid, got %s", outcome.Status)
	}
	if !outcome.CanRetry {
		t.Fatalf("attempt errors must be retryable")
	}
}

func TestValidateMissingRequiredKeys(t *testing.T) {
	parsed := map[string]interface{}{"unexpected": []interface{}{}}
	outcome := Validate(drugTask(), parsed, nil)
	if outcome.Status != ValidationInvalid || !outcome.CanRetry {
		t.Fatalf("expected retryable Invalid, got %+v", outcome)
	}
	if len(outcome.Errors) == 0 {
		t.Fatalf("expected errors to be recorded")
	}
}

func TestValidateWrongTypeForRequiredKey(t *testing.T) {
	parsed := map[string]interface{}{
		"drug_entities":      "not a list",
		"drug_relationships": []interface{}{},
	}
	outcome := Validate(drugTask(), parsed, nil)
	if outcome.Status != ValidationInvalid {
		t.Fatalf("expected Invalid, got %s", outcome.Status)
	}
}

func TestValidateEmptyEntitiesNeedsReview(t *testing.T) {
	parsed := map[string]interface{}{
		"drug_entities":      []interface{}{},
		"drug_relationships": []interface{}{},
	}
	outcome := Validate(drugTask(), parsed, nil)
	if outcome.Status != ValidationNeedsReview {
		t.Fatalf("expected NeedsReview, got %s", outcome.Status)
	}
	if !outcome.CanRetry {
		t.Fatalf("NeedsReview must allow retry")
	}
}

func TestValidateWellFormedDrugOutput(t *testing.T) {
	parsed, err := Normalize(validDrugResponse)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	outcome := Validate(drugTask(), parsed, nil)
	if outcome.Status != ValidationValid {
		t.Fatalf("expected Valid, got %+v", outcome)
	}
}

func TestValidateDiagnosisShape(t *testing.T) {
	parsed, err := Normalize(validDiagnosisResponse)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	task := CohortTask{ID: "t2", Name: "t2d staging", AgentKind: AgentKindDiagnosis}
	outcome := Validate(task, parsed, nil)
	if outcome.Status != ValidationValid {
		t.Fatalf("expected Valid, got %+v", outcome)
	}

	// drug output shape must not pass for a diagnosis task
	drugParsed, err := Normalize(validDrugResponse)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	outcome = Validate(task, drugParsed, nil)
	if outcome.Status != ValidationInvalid {
		t.Fatalf("expected Invalid for cross-kind shape, got %+v", outcome)
	}
}

func TestDecodeExtractionDrug(t *testing.T) {
	parsed, err := Normalize(validDrugResponse)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	result := DecodeExtraction(drugTask(), parsed)
	if len(result.Entities) != 1 || result.Entities[0].ConceptName != "Metformin" {
		t.Fatalf("unexpected entities: %+v", result.Entities)
	}
	if result.Entities[0].Category != "biguanide" {
		t.Fatalf("expected drug_class as category, got %q", result.Entities[0].Category)
	}
	if len(result.Relationships) != 1 {
		t.Fatalf("unexpected relationships: %+v", result.Relationships)
	}
	rel := result.Relationships[0]
	if rel.Source != "Metformin" || rel.Target != "Type 2 diabetes mellitus" || rel.Type != "treats" {
		t.Fatalf("unexpected relationship mapping: %+v", rel)
	}
}
