// Package session implements server-side sessions over Redis. The
// browser holds only an opaque 128-bit id; all state, including the CSRF
// token, stays server-side.
//
// [Manager.Login] always issues a fresh id and destroys the one the
// browser presented before authentication, so a fixated pre-login id
// never becomes an authenticated session. [Manager.Current] enforces the
// idle timeout (and optional absolute lifetime) and slides the Redis TTL
// on each authenticated request.
package session
