// Package foliogate is the authentication and anti-abuse core of a
// single-operator portfolio site. It bundles password login, TOTP
// two-factor authentication with backup codes, Redis-backed rate
// limiting and sessions, and an asynchronous security event log behind
// one [Engine] built through [Builder.Build].
//
// The surrounding web application owns routing, templates, and content.
// It hands every security decision to the Engine: controllers call
// [Engine.Login], [Engine.VerifyLoginTOTP], and friends, and translate
// the returned sentinel errors into opaque HTTP responses. The Engine
// never distinguishes "unknown email" from "wrong password" in its
// public outcomes, and applies the same fixed delay to both.
//
// # Architecture boundaries
//
// foliogate is the public surface. Redis holds all ephemeral shared
// state (sessions, attempt counters, pending two-factor challenges,
// enrollment slots); durable state (credentials, security events) lives
// behind the [credstore.Store] and [audit.Sink] interfaces, with SQLite
// implementations provided. Engine methods are safe for concurrent use
// after Build.
package foliogate
