// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package modelstore maps a model tag to the local filesystem path of its
// GGUF blob, for the Coordinator lifecycle's RPC-path model resolution
// (spec.md §4.8). PerformanceMemory is explicitly in-memory only, so this
// is the one component that actually needs an embedded, persistent KV
// store; it is backed by Badger.
package modelstore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var ErrModelNotFound = errors.New("modelstore: model not registered")

const keyPrefix = "gguf:"

// Store resolves model tags to local GGUF blob paths.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("modelstore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a database backed only by memory, for tests and
// single-process deployments that do not need the registration to
// survive a restart.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("modelstore: open in-memory: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register records that tag's GGUF blob lives at blobPath.
func (s *Store) Register(tag, blobPath string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+tag), []byte(blobPath))
	})
}

// Resolve returns the GGUF blob path registered for tag, or
// ErrModelNotFound if none is registered.
func (s *Store) Resolve(tag string) (string, error) {
	var path string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + tag))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrModelNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			path = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Forget removes tag's registration, if any.
func (s *Store) Forget(tag string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + tag))
	})
}
