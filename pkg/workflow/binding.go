package workflow

import (
	"regexp"
	"strings"

	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

// bindingRefPattern matches ${...} references in an input binding.
var bindingRefPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// resolveBinding expands an input-binding expression. An empty expression
// binds the run input. Supported references are ${input} (the run input)
// and ${steps.<id>.output} (the recorded output of an earlier step; empty
// for skipped steps).
func resolveBinding(expr, runInput string, recorded map[string]store.StepResult) (string, error) {
	if expr == "" {
		return runInput, nil
	}

	var refErr error
	resolved := bindingRefPattern.ReplaceAllStringFunc(expr, func(match string) string {
		ref := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if ref == "input" {
			return runInput
		}
		stepID, ok := stepOutputRef(ref)
		if !ok {
			if refErr == nil {
				refErr = faults.Validation("unknown binding reference %q", match)
			}
			return ""
		}
		return recorded[stepID].Output
	})
	if refErr != nil {
		return "", refErr
	}
	return resolved, nil
}

// validateBinding checks every reference in an input binding against the
// step ids declared before the binding step.
func validateBinding(stepID, expr string, earlier map[string]bool) error {
	for _, match := range bindingRefPattern.FindAllStringSubmatch(expr, -1) {
		ref := match[1]
		if ref == "input" {
			continue
		}
		refStep, ok := stepOutputRef(ref)
		if !ok {
			return faults.Validation("step %q: unknown binding reference ${%s}", stepID, ref)
		}
		if !earlier[refStep] {
			return faults.Validation("step %q: binding references %q, which is not an earlier step", stepID, refStep)
		}
	}
	return nil
}

// stepOutputRef extracts the step id from a "steps.<id>.output" reference.
func stepOutputRef(ref string) (string, bool) {
	inner, ok := strings.CutPrefix(ref, "steps.")
	if !ok {
		return "", false
	}
	stepID, ok := strings.CutSuffix(inner, ".output")
	if !ok || stepID == "" || strings.Contains(stepID, ".") {
		return "", false
	}
	return stepID, true
}
