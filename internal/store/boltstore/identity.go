package boltstore

import "github.com/google/uuid"

// NewID mints an opaque object identity string. Object identity strings
// are persistence-provider-chosen per spec: callers must not parse or
// order them, only compare for equality and use them as store keys.
func NewID() string {
	return uuid.NewString()
}
