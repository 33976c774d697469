// Package ids mints and parses the engine's opaque identifiers. Every
// identifiable record (usage, cost, pricing table) carries one: a
// client-supplied value when the caller wants idempotency keyed on their
// own ID space, or a server-minted one otherwise.
package ids

import "github.com/google/uuid"

// ID is the engine's identifier type. It is a UUID under the hood, but
// callers should treat it as opaque.
type ID = uuid.UUID

// Nil is the zero-value identifier, used to mean "not yet assigned".
var Nil = uuid.Nil

// New mints a fresh random (v4) identifier.
func New() ID { return uuid.New() }

// Parse parses s into an ID, returning an error if it is not a valid UUID.
func Parse(s string) (ID, error) { return uuid.Parse(s) }

// IsNil reports whether id is the zero value.
func IsNil(id ID) bool { return id == Nil }
