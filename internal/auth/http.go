// ABOUTME: HTTP credential extraction and denial response mapping
// ABOUTME: Accepts X-API-Key, Authorization Bearer, and X-Auth-Token headers

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ExtractCredential pulls the caller's credential from the request headers.
// The lookup order matches existing clients: X-API-Key first, then an
// Authorization bearer token, then X-Auth-Token. Returns "" when none are
// present.
func ExtractCredential(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if key := r.Header.Get("X-Auth-Token"); key != "" {
		return key
	}
	return ""
}

// StatusForReason maps a denial reason to an HTTP status code.
func StatusForReason(r Reason) int {
	switch r {
	case ReasonAuthentication:
		return http.StatusUnauthorized
	case ReasonAuthorization, ReasonPolicyViolation:
		return http.StatusForbidden
	case ReasonStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusForbidden
	}
}

// denialBody is the JSON payload sent with a denied request.
type denialBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// WriteDenial writes the JSON error response for a denied verdict. The body
// carries only the stable reason code, never internal error text.
func WriteDenial(w http.ResponseWriter, v Verdict) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForReason(v.Reason))
	json.NewEncoder(w).Encode(denialBody{
		Error:  "request denied",
		Reason: string(v.Reason),
	})
}
