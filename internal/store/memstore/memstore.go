// Package memstore is an in-memory store.Store used by package tests
// that need a real transactional backend without touching disk.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/lattice-mud/lattice/internal/store"
)

// Store is a mutex-guarded, in-memory implementation of store.Store.
type Store struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func (s *Store) bucket(collection string) map[string][]byte {
	b, ok := s.data[collection]
	if !ok {
		b = make(map[string][]byte)
		s.data[collection] = b
	}
	return b
}

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.bucket(collection)[key]
	return v, ok, nil
}

func (s *Store) Find(_ context.Context, collection, keyPrefix string) ([]store.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Doc
	for k, v := range s.bucket(collection) {
		if strings.HasPrefix(k, keyPrefix) {
			out = append(out, store.Doc{Key: k, Value: v})
		}
	}
	return out, nil
}

func (s *Store) Upsert(_ context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(collection)[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bucket(collection), key)
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{s: s, ctx: ctx})
}

func (s *Store) Close() error { return nil }

// tx runs against the already-locked Store; memstore serializes all
// access through Store.mu so a transaction is simply a deferred-unlock
// scope, not a separate snapshot.
type tx struct {
	s   *Store
	ctx context.Context
}

func (t *tx) Get(collection, key string) ([]byte, bool, error) {
	v, ok := t.s.bucket(collection)[key]
	return v, ok, nil
}

func (t *tx) Find(collection, keyPrefix string) ([]store.Doc, error) {
	var out []store.Doc
	for k, v := range t.s.bucket(collection) {
		if strings.HasPrefix(k, keyPrefix) {
			out = append(out, store.Doc{Key: k, Value: v})
		}
	}
	return out, nil
}

func (t *tx) Upsert(collection, key string, value []byte) error {
	t.s.bucket(collection)[key] = value
	return nil
}

func (t *tx) Delete(collection, key string) error {
	delete(t.s.bucket(collection), key)
	return nil
}
