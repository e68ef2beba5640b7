package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	err := NotFound("instance %s", "abc123")
	assert.Equal(t, "not found: instance abc123", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))

	// Classification survives further wrapping.
	wrapped := fmt.Errorf("resolving target: %w", InvalidState("instance is %s", "running"))
	assert.True(t, IsInvalidState(wrapped))
	assert.True(t, errors.Is(wrapped, ErrInvalidState))

	assert.True(t, IsAdapterFailure(AdapterFailure("exit code 3")))
	assert.True(t, IsStepFailure(StepFailure("step %q", "build")))
	assert.True(t, IsValidation(Validation("name is required")))

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("plain")))
}
