// Package password implements credential hashing and verification with
// bcrypt. The cost is configurable; [Bcrypt.NeedsRehash] reports when a
// stored hash was produced with a lower cost so the caller can re-hash
// on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy and
// failure handling live in the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other foliogate package.
//   - Log plaintext passwords.
package password
