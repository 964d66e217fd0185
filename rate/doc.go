// Package rate implements a fixed-window attempt limiter over Redis
// counters. Keys are caller-chosen (per IP, per email, per form), so the
// same limiter throttles logins, two-factor attempts, and contact form
// submissions.
//
// A window opens on the first hit via INCR plus EXPIRE and closes when
// the key expires; Redis TTL eviction is the garbage collector, no sweep
// runs. Backend failures surface as [ErrRedisUnavailable] so callers can
// decide between failing open and failing closed.
package rate
