// ABOUTME: Package documentation for the HTTP gateway
// ABOUTME: Lists the API surface and its authorization model

// Package gateway exposes pkggate over HTTP.
//
// The API surface:
//
//	GET    /health                   liveness check, no auth
//	POST   /v1/authorize             decide an action for the caller
//	POST   /v1/users                 create a user (admin)
//	GET    /v1/users                 list users (admin)
//	DELETE /v1/users/{username}      delete a user (admin)
//	GET    /v1/audit                 query audit records (admin)
//
// Credentials arrive in X-API-Key, Authorization: Bearer, or X-Auth-Token
// headers. Every endpoint except /health runs through the authorization
// middleware, so each request leaves an audit record whether it is allowed
// or denied. Store operations that fail after an allowed decision (a
// duplicate username, deleting the last admin) additionally record an
// error-outcome entry.
package gateway
