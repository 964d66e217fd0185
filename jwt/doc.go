// Package jwt issues and verifies the signed remember-device tokens
// that let a trusted browser skip the second factor. Tokens are HS256
// JWTs bound to a user id; verification failures are reported but carry
// no detail, and callers treat them as "not trusted" rather than as
// login errors.
package jwt
