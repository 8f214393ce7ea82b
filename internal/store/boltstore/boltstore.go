// Package boltstore is the concrete Object Store implementation over
// go.etcd.io/bbolt, grounded on the teacher's pkg/boltstore/store.go:
// one bucket per collection, created on Open, read/write through
// bolt.View/bolt.Update closures.
package boltstore

import (
	"context"
	"fmt"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/lattice-mud/lattice/internal/store"
)

// Store wraps a bbolt database file. It implements store.Store.
type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a bbolt database file, ensuring every collection's
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	buckets := []string{
		store.CollectionClasses,
		store.CollectionObjects,
		store.CollectionPlayers,
		store.CollectionVerbs,
		store.CollectionFunctions,
		store.CollectionCounters,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("boltstore: no such collection %q", collection)
		}
		v := b.Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *Store) Find(_ context.Context, collection, keyPrefix string) ([]store.Doc, error) {
	var docs []store.Doc
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("boltstore: no such collection %q", collection)
		}
		c := b.Cursor()
		prefix := []byte(keyPrefix)
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), keyPrefix); k, v = c.Next() {
			docs = append(docs, store.Doc{Key: string(k), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return docs, err
}

func (s *Store) Upsert(_ context.Context, collection, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("boltstore: no such collection %q", collection)
		}
		return b.Put([]byte(key), value)
	})
}

func (s *Store) Delete(_ context.Context, collection, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("boltstore: no such collection %q", collection)
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) WithTx(_ context.Context, fn func(store.Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// boltTx adapts a live *bolt.Tx to the store.Tx interface.
type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Get(collection, key string) ([]byte, bool, error) {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, false, fmt.Errorf("boltstore: no such collection %q", collection)
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *boltTx) Find(collection, keyPrefix string) ([]store.Doc, error) {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, fmt.Errorf("boltstore: no such collection %q", collection)
	}
	var docs []store.Doc
	c := b.Cursor()
	prefix := []byte(keyPrefix)
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), keyPrefix); k, v = c.Next() {
		docs = append(docs, store.Doc{Key: string(k), Value: append([]byte(nil), v...)})
	}
	return docs, nil
}

func (t *boltTx) Upsert(collection, key string, value []byte) error {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return fmt.Errorf("boltstore: no such collection %q", collection)
	}
	return b.Put([]byte(key), value)
}

func (t *boltTx) Delete(collection, key string) error {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return fmt.Errorf("boltstore: no such collection %q", collection)
	}
	return b.Delete([]byte(key))
}
