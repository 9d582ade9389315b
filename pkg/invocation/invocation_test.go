package invocation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestAssignsUniqueIDs(t *testing.T) {
	a := NewRequest("web", "search", nil)
	b := NewRequest("web", "search", nil)

	assert.NotEmpty(t, a.InvocationID)
	assert.NotEqual(t, a.InvocationID, b.InvocationID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestSuccessResultSummaryIsRawPayload(t *testing.T) {
	req := NewRequest("web", "search", nil)
	result := SuccessResult(req, json.RawMessage(`{"matches":[]}`))

	assert.True(t, result.Succeeded())
	assert.Equal(t, `{"matches":[]}`, result.Summary())
	assert.Equal(t, req.InvocationID, result.InvocationID)
}

func TestFailureSummariesAreStructured(t *testing.T) {
	req := NewRequest("web", "search", nil)

	tests := []struct {
		name   string
		result Result
		expect map[string]interface{}
	}{
		{
			name:   "provider error",
			result: ProviderErrorResult(req, -32002, "index offline"),
			expect: map[string]interface{}{"error": "provider-error", "code": float64(-32002), "message": "index offline"},
		},
		{
			name:   "transport error",
			result: TransportErrorResult(req, "request timed out"),
			expect: map[string]interface{}{"error": "transport-error", "reason": "request timed out"},
		},
		{
			name:   "policy denied",
			result: PolicyDeniedResult(req, "timeout"),
			expect: map[string]interface{}{"error": "policy-denied", "reason": "timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.result.Succeeded())

			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.result.Summary()), &decoded))
			assert.Equal(t, tt.expect, decoded)
		})
	}
}
