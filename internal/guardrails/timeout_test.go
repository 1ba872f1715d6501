package guardrails

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

func TestNewTimeoutManager_Clamps(t *testing.T) {
	assert.Equal(t, MinTimeoutSeconds, NewTimeoutManager(0, nil).TimeoutSeconds)
	assert.Equal(t, MinTimeoutSeconds, NewTimeoutManager(-5, nil).TimeoutSeconds)
	assert.Equal(t, 30, NewTimeoutManager(30, nil).TimeoutSeconds)
	assert.Equal(t, MaxTimeoutSeconds, NewTimeoutManager(600, nil).TimeoutSeconds)
}

func TestAssertTimeAvailable(t *testing.T) {
	tm := NewTimeoutManager(30, nil)
	assert.NoError(t, tm.AssertTimeAvailable(time.Second, "stage_1_retrieval", 0))

	// Move the deadline into the past to simulate an expired budget.
	tm.Deadline = time.Now().Add(-time.Second)

	err := tm.AssertTimeAvailable(time.Second, "stage_3_generation", 2)
	require.Error(t, err)

	e := ragerr.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, 408, e.StatusCode)
	assert.Equal(t, "timeout", e.Code)
	assert.Equal(t, 30, e.Details["timeout_seconds"])
	assert.Equal(t, 2, e.Details["stages_completed"])
}

func TestAssertTimeAvailable_MinRequired(t *testing.T) {
	tm := NewTimeoutManager(30, nil)
	// 500ms of budget left is enough for a zero-cost stage but not for a
	// stage that needs a full second.
	tm.Deadline = time.Now().Add(500 * time.Millisecond)

	assert.NoError(t, tm.AssertTimeAvailable(0, "stage_1_retrieval", 0))
	assert.Error(t, tm.AssertTimeAvailable(time.Second, "stage_1_retrieval", 0))
}
