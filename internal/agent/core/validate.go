package core

import "fmt"

// agentShapes maps each agent kind to the top-level keys its output must
// carry. entityKeys must contain at least one non-empty list for the
// attempt to count as Valid.
var agentShapes = map[AgentKind]struct {
	requiredKeys []string
	entityKeys   []string
}{
	AgentKindDrug: {
		requiredKeys: []string{"drug_entities", "drug_relationships"},
		entityKeys:   []string{"drug_entities"},
	},
	AgentKindDiagnosis: {
		requiredKeys: []string{"condition_entities", "condition_relationships"},
		entityKeys:   []string{"condition_entities"},
	},
}

// Validate judges one extraction attempt for a task. A prior attempt error
// (agent call failure or normalization failure) is always Invalid and
// retryable. A parsed object is checked against the shape rules for the
// task's agent kind: missing required keys mean Invalid, structurally
// complete output with no extracted entities means NeedsReview. NeedsReview
// is retried like Invalid, but the scheduler may accept it as a degraded
// result once retries are exhausted.
func Validate(task CohortTask, parsed map[string]interface{}, attemptErr error) ValidationOutcome {
	if attemptErr != nil {
		return ValidationOutcome{
			Status:   ValidationInvalid,
			Errors:   []string{attemptErr.Error()},
			CanRetry: true,
		}
	}
	if parsed == nil {
		return ValidationOutcome{
			Status:   ValidationInvalid,
			Errors:   []string{"no parsed output"},
			CanRetry: true,
		}
	}

	shape, ok := agentShapes[task.AgentKind]
	if !ok {
		return ValidationOutcome{
			Status:   ValidationInvalid,
			Errors:   []string{fmt.Sprintf("no validation rules for agent kind %q", task.AgentKind)},
			CanRetry: false,
		}
	}

	var errs []string
	for _, key := range shape.requiredKeys {
		value, present := parsed[key]
		if !present {
			errs = append(errs, fmt.Sprintf("missing required key %q", key))
			continue
		}
		if _, isList := value.([]interface{}); !isList && value != nil {
			errs = append(errs, fmt.Sprintf("key %q is not a list", key))
		}
	}
	if len(errs) > 0 {
		return ValidationOutcome{Status: ValidationInvalid, Errors: errs, CanRetry: true}
	}

	hasEntities := false
	for _, key := range shape.entityKeys {
		if list, ok := parsed[key].([]interface{}); ok && len(list) > 0 {
			hasEntities = true
			break
		}
	}
	if !hasEntities {
		return ValidationOutcome{
			Status:   ValidationNeedsReview,
			Errors:   []string{"output is structurally complete but contains no entities"},
			CanRetry: true,
		}
	}

	return ValidationOutcome{Status: ValidationValid, CanRetry: false}
}
