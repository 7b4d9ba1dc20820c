package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DocumentStatus_Transitions(t *testing.T) {
	assert.True(t, StatusUploaded.CanTransition(StatusProcessing))
	assert.True(t, StatusProcessing.CanTransition(StatusDone))
	assert.True(t, StatusProcessing.CanTransition(StatusFailed))

	// No skipping, no reverting, no leaving a terminal state.
	assert.False(t, StatusUploaded.CanTransition(StatusDone))
	assert.False(t, StatusProcessing.CanTransition(StatusUploaded))
	assert.False(t, StatusDone.CanTransition(StatusProcessing))
	assert.False(t, StatusFailed.CanTransition(StatusDone))
	assert.False(t, StatusUploaded.CanTransition("bogus"))
}

func Test_DocumentStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusUploaded.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func Test_ParseDocumentStatus(t *testing.T) {
	status, err := ParseDocumentStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, status)

	_, err = ParseDocumentStatus("archived")
	require.Error(t, err)
}
