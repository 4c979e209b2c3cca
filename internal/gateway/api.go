// ABOUTME: HTTP API handlers for authorization decisions and user administration
// ABOUTME: Admin endpoints authorize through the middleware before touching the store

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/northloop/pkggate/internal/audit"
	"github.com/northloop/pkggate/internal/auth"
	"github.com/northloop/pkggate/internal/store"
)

// AuthorizeRequest is the JSON request body for POST /v1/authorize.
// Credential is a fallback for dispatchers that cannot set headers; the
// header forms take precedence.
type AuthorizeRequest struct {
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Credential string         `json:"credential,omitempty"`
}

// AuthorizeResponse is the JSON response for an allowed decision.
type AuthorizeResponse struct {
	Allowed  bool              `json:"allowed"`
	Identity *IdentityResponse `json:"identity,omitempty"`
}

// IdentityResponse is the caller identity echoed back on an allowed
// decision.
type IdentityResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateUserRequest is the JSON request body for POST /v1/users.
type CreateUserRequest struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	Credential string `json:"credential,omitempty"`
}

// CreateUserResponse is the JSON response for POST /v1/users. Credential is
// the plaintext secret, returned exactly once.
type CreateUserResponse struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	Credential string `json:"credential"`
	CreatedAt  string `json:"created_at"`
}

// UserResponse is one entry in the GET /v1/users listing.
type UserResponse struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AuditRecordResponse is one entry in the GET /v1/audit listing.
type AuditRecordResponse struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Outcome   string         `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// handleHealth handles GET /health requests.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleAuthorize handles POST /v1/authorize requests. The decision verdict
// is the whole response; denials carry only a stable reason code.
func (g *Gateway) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSONBody[AuthorizeRequest](r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Action == "" {
		g.sendJSONError(w, http.StatusBadRequest, "action is required")
		return
	}

	credential := auth.ExtractCredential(r)
	if credential == "" {
		credential = req.Credential
	}

	verdict := g.middleware.Authorize(r.Context(), credential, auth.Action(req.Action), req.Params)
	if !verdict.Allowed {
		auth.WriteDenial(w, verdict)
		return
	}

	resp := AuthorizeResponse{Allowed: true}
	if verdict.Identity != nil {
		resp.Identity = &IdentityResponse{
			Username: verdict.Identity.Username,
			Role:     string(verdict.Identity.Role),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCreateUser handles POST /v1/users requests.
func (g *Gateway) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSONBody[CreateUserRequest](r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := map[string]any{"username": req.Username, "role": req.Role}
	ctx, ok := g.authorize(w, r, auth.ActionCreateUser, params)
	if !ok {
		return
	}

	user, credential, err := g.users.CreateUser(ctx, req.Username, store.Role(req.Role), req.Credential)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUser):
			g.recordOutcome(ctx, auth.ActionCreateUser, auth.ReasonDuplicateUser, params)
			g.sendJSONError(w, http.StatusConflict, "user already exists")
		case errors.Is(err, store.ErrInvalidUsername), errors.Is(err, store.ErrInvalidRole):
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrStorage):
			g.logger.Error("user store unavailable", "error", err)
			g.sendJSONError(w, http.StatusServiceUnavailable, "user store unavailable")
		default:
			g.logger.Error("creating user", "username", req.Username, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "creating user failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateUserResponse{
		Username:   user.Username,
		Role:       string(user.Role),
		Credential: credential,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
	})
}

// handleListUsers handles GET /v1/users requests.
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, ok := g.authorize(w, r, auth.ActionListUsers, nil)
	if !ok {
		return
	}

	users, err := g.users.ListUsers(ctx)
	if err != nil {
		g.logger.Error("listing users", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, UserResponse{
			Username:  u.Username,
			Role:      string(u.Role),
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"users": resp})
}

// handleDeleteUser handles DELETE /v1/users/{username} requests.
func (g *Gateway) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	params := map[string]any{"username": username}

	ctx, ok := g.authorize(w, r, auth.ActionDeleteUser, params)
	if !ok {
		return
	}

	if err := g.users.DeleteUser(ctx, username); err != nil {
		switch {
		case errors.Is(err, store.ErrLastAdmin):
			g.recordOutcome(ctx, auth.ActionDeleteUser, auth.ReasonLastAdmin, params)
			g.sendJSONError(w, http.StatusConflict, "cannot delete the last admin user")
		case errors.Is(err, store.ErrUserNotFound):
			g.sendJSONError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, store.ErrStorage):
			g.logger.Error("user store unavailable", "error", err)
			g.sendJSONError(w, http.StatusServiceUnavailable, "user store unavailable")
		default:
			g.logger.Error("deleting user", "username", username, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "deleting user failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListAudit handles GET /v1/audit requests. Supports actor, action,
// outcome, since, until, and limit query parameters.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx, ok := g.authorize(w, r, auth.ActionReadAudit, nil)
	if !ok {
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := g.audit.List(ctx, filter)
	if err != nil {
		g.logger.Error("listing audit records", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}

	resp := make([]AuditRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, AuditRecordResponse{
			ID:        rec.ID,
			Seq:       rec.Seq,
			Actor:     rec.Actor,
			Action:    rec.Action,
			Outcome:   string(rec.Outcome),
			Reason:    rec.Reason,
			Params:    rec.Params,
			Timestamp: rec.Timestamp.Format(time.RFC3339Nano),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"records": resp})
}

// parseAuditFilter builds an audit filter from query parameters.
func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	var f audit.Filter
	q := r.URL.Query()

	if v := q.Get("actor"); v != "" {
		f.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		f.Action = &v
	}
	if v := q.Get("outcome"); v != "" {
		o := audit.Outcome(v)
		f.Outcome = &o
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("until must be an RFC 3339 timestamp")
		}
		f.Until = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// authorize runs the middleware for an admin endpoint. On an allowed
// decision it returns a context carrying the caller identity; on a denial
// it writes the response itself and reports false.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, action auth.Action, params map[string]any) (context.Context, bool) {
	verdict := g.middleware.Authorize(r.Context(), auth.ExtractCredential(r), action, params)
	if !verdict.Allowed {
		auth.WriteDenial(w, verdict)
		return nil, false
	}
	ctx := r.Context()
	if verdict.Identity != nil {
		ctx = auth.WithIdentity(ctx, *verdict.Identity)
	}
	return ctx, true
}

// recordOutcome writes an operation-outcome audit record for a store
// operation that was authorized but failed, so the attempt is visible next
// to the allowed decision.
func (g *Gateway) recordOutcome(ctx context.Context, action auth.Action, reason auth.Reason, params map[string]any) {
	actor := audit.AnonymousActor
	if id, ok := auth.IdentityFromContext(ctx); ok {
		actor = id.Username
	}
	rec := audit.Record{
		Actor:   actor,
		Action:  string(action),
		Outcome: audit.OutcomeError,
		Reason:  string(reason),
		Params:  audit.SanitizeParams(params),
	}
	if err := g.audit.Append(ctx, &rec); err != nil {
		g.logger.Error("audit write failed",
			"actor", actor,
			"action", string(action),
			"error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseJSONBody decodes a JSON request body into the given type.
func parseJSONBody[T any](body io.Reader) (*T, error) {
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
