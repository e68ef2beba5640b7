package workflow

import (
	"strings"

	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// evaluateCondition decides whether a step runs. An empty condition always
// runs. The predicate form is "steps.<id>.<status>" with status one of
// completed, failed or skipped, optionally negated with a leading "!".
// A predicate over a step with no recorded result is false (and its
// negation true), so guards on later steps never fail hard.
func evaluateCondition(cond string, recorded map[string]store.StepResult) (bool, error) {
	if cond == "" {
		return true, nil
	}

	expr := strings.TrimSpace(cond)
	negated := strings.HasPrefix(expr, "!")
	if negated {
		expr = strings.TrimSpace(strings.TrimPrefix(expr, "!"))
	}

	stepID, status, err := parseStatusPredicate(expr)
	if err != nil {
		return false, err
	}

	result, ok := recorded[stepID]
	matched := ok && result.Status == status
	if negated {
		return !matched, nil
	}
	return matched, nil
}

// validateCondition checks a condition at definition time against the step
// ids declared before the guarded step.
func validateCondition(stepID, cond string, earlier map[string]bool) error {
	if cond == "" {
		return nil
	}
	expr := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cond), "!"))
	refStep, _, err := parseStatusPredicate(expr)
	if err != nil {
		return faults.Validation("step %q: %s", stepID, err.Error())
	}
	if !earlier[refStep] {
		return faults.Validation("step %q: condition references %q, which is not an earlier step", stepID, refStep)
	}
	return nil
}

// parseStatusPredicate splits "steps.<id>.<status>" into its parts.
func parseStatusPredicate(expr string) (string, store.StepStatus, error) {
	inner, ok := strings.CutPrefix(expr, "steps.")
	if !ok {
		return "", "", faults.Validation("invalid condition %q: must be steps.<id>.<status>", expr)
	}
	dot := strings.LastIndex(inner, ".")
	if dot <= 0 {
		return "", "", faults.Validation("invalid condition %q: must be steps.<id>.<status>", expr)
	}
	stepID := inner[:dot]
	status := store.StepStatus(inner[dot+1:])
	switch status {
	case store.StepCompleted, store.StepFailed, store.StepSkipped:
		return stepID, status, nil
	default:
		return "", "", faults.Validation("invalid condition %q: unknown status %q", expr, status)
	}
}
