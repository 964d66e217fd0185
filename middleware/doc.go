// Package middleware adapts the session manager to net/http. Guard
// gates the admin surface behind a live session (with an optional IP
// allowlist); CSRF rejects mutating requests whose token does not match
// the session.
package middleware
