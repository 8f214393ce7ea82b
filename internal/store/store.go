// Package store defines the Object Store port: a thin mapping over a
// document database exposing named collections with get/find/upsert/
// delete and a scoped transaction. Every other component — World Model,
// Registry, Session — talks to persistence only through this interface;
// internal/store/boltstore is the concrete go.etcd.io/bbolt-backed
// implementation.
package store

import "context"

// Collection names, one bbolt bucket each in the concrete implementation.
const (
	CollectionClasses   = "classes"
	CollectionObjects   = "objects"
	CollectionPlayers   = "players"
	CollectionVerbs     = "verbs"
	CollectionFunctions = "functions"
	CollectionCounters  = "counters"
)

// Doc is an opaque persisted document: a collection-scoped key and its
// encoded bytes. Callers (World Model, Registry) own encoding/decoding;
// the store never interprets the payload.
type Doc struct {
	Key   string
	Value []byte
}

// Store is the Object Store port.
type Store interface {
	// Get fetches one document by key. Returns (nil, false, nil) if absent.
	Get(ctx context.Context, collection, key string) ([]byte, bool, error)
	// Find returns every document in a collection whose key has the given
	// prefix (empty prefix returns the whole collection).
	Find(ctx context.Context, collection, keyPrefix string) ([]Doc, error)
	// Upsert writes (creating or overwriting) a single document.
	Upsert(ctx context.Context, collection, key string, value []byte) error
	// Delete removes a document. No error if it was already absent.
	Delete(ctx context.Context, collection, key string) error
	// WithTx runs fn inside a single scoped transaction: every Tx method
	// call inside fn either all commit together or, if fn returns an
	// error, none do.
	WithTx(ctx context.Context, fn func(Tx) error) error
	// Close releases underlying resources.
	Close() error
}

// Tx is the scoped-transaction handle passed into WithTx's callback. It
// exposes the same read/write surface as Store so callers can write
// transaction-generic code, but every call happens against the one
// in-flight transaction.
type Tx interface {
	Get(collection, key string) ([]byte, bool, error)
	Find(collection, keyPrefix string) ([]Doc, error)
	Upsert(collection, key string, value []byte) error
	Delete(collection, key string) error
}
