// ABOUTME: Tests for HTTP credential extraction and denial responses
// ABOUTME: Covers header precedence and reason-to-status mapping

package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-api-key", map[string]string{"X-API-Key": "abc"}, "abc"},
		{"bearer", map[string]string{"Authorization": "Bearer tok123"}, "tok123"},
		{"bearer with padding", map[string]string{"Authorization": "Bearer  tok123 "}, "tok123"},
		{"x-auth-token", map[string]string{"X-Auth-Token": "xyz"}, "xyz"},
		{"x-api-key wins over bearer", map[string]string{"X-API-Key": "abc", "Authorization": "Bearer tok"}, "abc"},
		{"bearer wins over x-auth-token", map[string]string{"Authorization": "Bearer tok", "X-Auth-Token": "xyz"}, "tok"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, ""},
		{"no headers", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/authorize", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractCredential(r))
		})
	}
}

func TestStatusForReason(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, StatusForReason(ReasonAuthentication))
	assert.Equal(t, http.StatusForbidden, StatusForReason(ReasonAuthorization))
	assert.Equal(t, http.StatusForbidden, StatusForReason(ReasonPolicyViolation))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForReason(ReasonStorage))
	assert.Equal(t, http.StatusForbidden, StatusForReason(Reason("unmapped")))
}

func TestWriteDenial(t *testing.T) {
	w := httptest.NewRecorder()
	WriteDenial(w, denied(ReasonPolicyViolation, nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "policy_violation", body["reason"])
	assert.NotContains(t, body["error"], "regexp", "denial body must not leak internals")
}
