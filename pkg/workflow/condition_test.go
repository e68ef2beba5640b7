package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/roost/pkg/store"
)

func TestEvaluateCondition(t *testing.T) {
	recorded := map[string]store.StepResult{
		"build": {StepID: "build", Status: store.StepCompleted},
		"lint":  {StepID: "lint", Status: store.StepFailed},
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{name: "empty always runs", cond: "", want: true},
		{name: "matching status", cond: "steps.build.completed", want: true},
		{name: "non-matching status", cond: "steps.build.failed", want: false},
		{name: "negation", cond: "!steps.build.failed", want: true},
		{name: "failed step", cond: "steps.lint.failed", want: true},
		{name: "unrecorded step is false", cond: "steps.ghost.completed", want: false},
		{name: "negated unrecorded step is true", cond: "!steps.ghost.completed", want: true},
		{name: "whitespace tolerated", cond: "  ! steps.build.failed ", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluateCondition(tt.cond, recorded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("malformed predicate errors", func(t *testing.T) {
		for _, cond := range []string{"build.completed", "steps.build", "steps.build.running", "steps..completed"} {
			_, err := evaluateCondition(cond, recorded)
			assert.Error(t, err, "cond %q", cond)
		}
	})
}

func TestValidateCondition(t *testing.T) {
	earlier := map[string]bool{"build": true}

	assert.NoError(t, validateCondition("deploy", "", earlier))
	assert.NoError(t, validateCondition("deploy", "steps.build.completed", earlier))
	assert.NoError(t, validateCondition("deploy", "!steps.build.skipped", earlier))

	assert.Error(t, validateCondition("deploy", "steps.deploy.completed", earlier), "self reference")
	assert.Error(t, validateCondition("deploy", "steps.later.completed", earlier))
	assert.Error(t, validateCondition("deploy", "steps.build.exploded", earlier))
}
