package guardrails

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragworks/rag-engine/internal/ragerr"
)

func TestValidateQueryText(t *testing.T) {
	var v InputValidator

	assert.NoError(t, v.ValidateQueryText("what is the onboarding process?"))

	err := v.ValidateQueryText("")
	require.Error(t, err)
	e := ragerr.AsError(err)
	require.NotNil(t, e)
	assert.Equal(t, 422, e.StatusCode)
	assert.Equal(t, "query", e.Details["field"])

	assert.Error(t, v.ValidateQueryText("   \t\n  "))

	// At the boundary is fine, one past it is not.
	assert.NoError(t, v.ValidateQueryText(strings.Repeat("a", MaxQueryLength)))
	assert.Error(t, v.ValidateQueryText(strings.Repeat("a", MaxQueryLength+1)))

	assert.Error(t, v.ValidateQueryText("please __forbidden__ this"))
}

func TestValidateTopK(t *testing.T) {
	var v InputValidator

	assert.Error(t, v.ValidateTopK(0))
	assert.NoError(t, v.ValidateTopK(1))
	assert.NoError(t, v.ValidateTopK(100))
	assert.Error(t, v.ValidateTopK(101))

	e := ragerr.AsError(v.ValidateTopK(250))
	require.NotNil(t, e)
	assert.Equal(t, 250, e.Details["top_k"])
	assert.Equal(t, TopKMin, e.Details["min"])
	assert.Equal(t, TopKMax, e.Details["max"])
}

func TestValidateRequest(t *testing.T) {
	var v InputValidator

	assert.NoError(t, v.ValidateRequest("valid query", 10))

	// Query errors surface before top_k errors.
	e := ragerr.AsError(v.ValidateRequest("", 0))
	require.NotNil(t, e)
	assert.Equal(t, "query", e.Details["field"])

	e = ragerr.AsError(v.ValidateRequest("valid query", 0))
	require.NotNil(t, e)
	assert.Equal(t, "top_k", e.Details["field"])
}
