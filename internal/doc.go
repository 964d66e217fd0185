// Package internal holds shared primitives (random identifiers, token
// encoding) used by foliogate and its sub-packages. Nothing here is part
// of the public API.
package internal
