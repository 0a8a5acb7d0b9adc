package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProgressValidBlock(t *testing.T) {
	raw := "Great work today! Here's your breakdown.\n\n" +
		"[[PROGRESS_LOG]]{\"type\":\"meal_log\",\"calories\":520,\"protein\":34}[[/PROGRESS_LOG]]"

	cleaned, event := ExtractProgress(raw)

	assert.Equal(t, "Great work today! Here's your breakdown.", cleaned)
	require.NotNil(t, event)
	assert.Equal(t, "meal_log", event.Type)
	assert.JSONEq(t, `{"type":"meal_log","calories":520,"protein":34}`, event.Payload)
}

func TestExtractProgressPlainProse(t *testing.T) {
	raw := "Keep your protein up and drink more water."

	cleaned, event := ExtractProgress(raw)

	assert.Equal(t, raw, cleaned)
	assert.Nil(t, event)
}

func TestExtractProgressMissingEndMarker(t *testing.T) {
	raw := "Some advice. [[PROGRESS_LOG]]{\"type\":\"meal_log\"}"

	cleaned, event := ExtractProgress(raw)

	// A lone marker is treated as plain prose, not stripped.
	assert.Equal(t, raw, cleaned)
	assert.Nil(t, event)
}

func TestExtractProgressEndBeforeStart(t *testing.T) {
	raw := "[[/PROGRESS_LOG]] odd text [[PROGRESS_LOG]]"

	cleaned, event := ExtractProgress(raw)

	assert.Equal(t, raw, cleaned)
	assert.Nil(t, event)
}

func TestExtractProgressMalformedInterior(t *testing.T) {
	raw := "Nice session!\n[[PROGRESS_LOG]]{not json at all[[/PROGRESS_LOG]]\nSee you tomorrow."

	cleaned, event := ExtractProgress(raw)

	// The event is discarded but the markup never reaches the user.
	assert.Nil(t, event)
	assert.Equal(t, "Nice session!\n\nSee you tomorrow.", cleaned)
	assert.NotContains(t, cleaned, "PROGRESS_LOG")
}

func TestExtractProgressBlockOnlyReply(t *testing.T) {
	raw := "[[PROGRESS_LOG]]{\"type\":\"body_scan\",\"trend\":\"improving\"}[[/PROGRESS_LOG]]"

	cleaned, event := ExtractProgress(raw)

	assert.Empty(t, cleaned)
	require.NotNil(t, event)
	assert.Equal(t, "body_scan", event.Type)
}
