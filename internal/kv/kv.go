// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

// Package kv wraps a badger key-value store for the counters and caches
// that do not belong in the relational catalog: per-day hit counters
// (24 h TTL), rating lookup caches (30-day TTL) and warm-cache blobs.
package kv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/vodhive/vodhive/internal/logging"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a thin badger wrapper. All operations are safe for concurrent
// use; badger provides per-key serializability.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory store, used by tests.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's default logger prints to stdout; route through zerolog.
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying badger store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set writes value under key with an optional TTL (0 = no expiry).
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get reads the value stored under key. Returns ErrNotFound for missing or
// expired keys.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// GetInt reads an integer counter. Missing keys read as 0.
func (s *Store) GetInt(key string) (int64, error) {
	raw, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kv: corrupt counter %q: %w", key, err)
	}
	return n, nil
}

// AddInt adds delta to the integer counter under key inside a single
// transaction and refreshes its TTL. Returns the new value.
func (s *Store) AddInt(key string, delta int64, ttl time.Duration) (int64, error) {
	var out int64
	err := s.db.Update(func(txn *badger.Txn) error {
		current := int64(0)
		item, err := txn.Get([]byte(key))
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); err == nil {
				current = n
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		out = current + delta
		e := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(out, 10)))
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	return out, err
}

// Keys returns all live keys with the given prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// RunGC runs one badger value-log GC pass. Called by the scheduler's daily
// routine; ErrNoRewrite (nothing to collect) is not an error.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// badgerLogger adapts badger's logger interface onto zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+strings.TrimSpace(format), args...)
}
