// Package credstore is the durable credential boundary. The Engine only
// ever sees the typed [Credential] record through the [Store] interface;
// schema and driver details stay behind it.
//
// Two-factor state is modeled as an optional sub-struct: a nil
// [Credential.TwoFactor] means disabled, and a non-nil one always
// carries both the shared secret and the backup code hashes. The record
// shape itself rules out "enabled without a secret".
package credstore
