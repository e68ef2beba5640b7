package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/roost/pkg/faults"
	"github.com/dyluth/roost/pkg/store"
)

func TestResolveBinding(t *testing.T) {
	recorded := map[string]store.StepResult{
		"build":   {StepID: "build", Status: store.StepCompleted, Output: "artifact-7"},
		"skipped": {StepID: "skipped", Status: store.StepSkipped},
	}

	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "empty binds run input", expr: "", want: "the input"},
		{name: "input reference", expr: "review: ${input}", want: "review: the input"},
		{name: "step output reference", expr: "deploy ${steps.build.output}", want: "deploy artifact-7"},
		{name: "skipped step output is empty", expr: "got [${steps.skipped.output}]", want: "got []"},
		{name: "mixed references", expr: "${input} + ${steps.build.output}", want: "the input + artifact-7"},
		{name: "literal text passes through", expr: "just words", want: "just words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveBinding(tt.expr, "the input", recorded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown reference fails", func(t *testing.T) {
		_, err := resolveBinding("${nope}", "in", recorded)
		assert.True(t, faults.IsValidation(err))
	})
}

func TestValidateBinding(t *testing.T) {
	earlier := map[string]bool{"build": true}

	assert.NoError(t, validateBinding("deploy", "${steps.build.output}", earlier))
	assert.NoError(t, validateBinding("deploy", "${input}", earlier))
	assert.NoError(t, validateBinding("deploy", "no references", earlier))

	assert.Error(t, validateBinding("deploy", "${steps.deploy.output}", earlier), "self reference")
	assert.Error(t, validateBinding("deploy", "${steps.later.output}", earlier))
	assert.Error(t, validateBinding("deploy", "${steps.build.result}", earlier), "only output is addressable")
	assert.Error(t, validateBinding("deploy", "${}", earlier))
}

func TestStepOutputRef(t *testing.T) {
	id, ok := stepOutputRef("steps.build.output")
	assert.True(t, ok)
	assert.Equal(t, "build", id)

	for _, ref := range []string{"input", "steps..output", "steps.a.b.output", "steps.build", "build.output"} {
		_, ok := stepOutputRef(ref)
		assert.False(t, ok, "ref %q", ref)
	}
}
