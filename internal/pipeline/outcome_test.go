// internal/pipeline/outcome_test.go
package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepOutcome(t *testing.T) {
	var o StepOutcome

	err := o.Require()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalStateMissing)
	assert.ErrorContains(t, err, "webhook URL")
	assert.ErrorContains(t, err, "auth token")

	assert.ErrorIs(t, o.SetWebhookURL("   "), ErrEmptyOutcome)
	assert.Empty(t, o.WebhookURL())

	require.NoError(t, o.SetWebhookURL(" https://hooks.test/w/1 "))
	assert.Equal(t, "https://hooks.test/w/1", o.WebhookURL())
	assert.ErrorIs(t, o.SetWebhookURL("https://hooks.test/w/2"), ErrOutcomeImmutable)
	assert.Equal(t, "https://hooks.test/w/1", o.WebhookURL(), "first value sticks")

	err = o.Require()
	assert.ErrorIs(t, err, ErrExternalStateMissing)
	assert.NotContains(t, err.Error(), "webhook URL")

	require.NoError(t, o.SetAuthToken("tok"))
	assert.ErrorIs(t, o.SetAuthToken("tok"), ErrOutcomeImmutable)
	assert.NoError(t, o.Require())
}

func TestStageError(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageDeploy, Err: inner}
	assert.Equal(t, "stage deploy: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	var se *StageError
	wrapped := errors.Join(errors.New("outer"), err)
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, StageDeploy, se.Stage)
}
