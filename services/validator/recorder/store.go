// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package recorder persists one immutable EvaluationRecord per terminal
// decision and aggregates offline quality metrics from them.
//
// The online decision path never reads the log and never blocks on it:
// appends go through a bounded queue drained by a single writer goroutine,
// and a saturated queue drops with a warning. Losing a few audit records is
// preferable to stalling live traffic, and a recorder failure must never
// change a decision already returned to the caller.
package recorder

import (
	"encoding/json"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/groundgate/groundgate/services/validator/datatypes"
)

// recordPrefix namespaces evaluation records in the store. Keys are
// "rec/<started-unix-nano>/<query-id>" so iteration is time-ordered.
const recordPrefix = "rec/"

// StoreConfig configures the embedded BadgerDB store.
type StoreConfig struct {
	// Path is the directory for database files. Ignored when InMemory.
	Path string `yaml:"path"`

	// InMemory disables disk persistence; for tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites trades write latency for durability. The recorder is
	// off the hot path, so production keeps this on.
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultStoreConfig returns production defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:       "/var/lib/groundgate/records",
		SyncWrites: true,
	}
}

// Store is the append-only record log on BadgerDB.
//
// Thread Safety: Safe for concurrent use; Badger transactions isolate
// writers.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenStore opens (or creates) the record store.
func OpenStore(cfg StoreConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Append persists one record. Records are write-once: an existing key is
// never overwritten (first write wins).
func (s *Store) Append(rec *datatypes.EvaluationRecord) error {
	key := recordKey(rec)
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return nil
		}
		return txn.Set(key, value)
	})
}

// Get returns the record for a query id, or nil when absent. Used only by
// the audit read endpoint, never by the online path.
func (s *Store) Get(queryID string) (*datatypes.EvaluationRecord, error) {
	var found *datatypes.EvaluationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		suffix := []byte("/" + queryID)
		for it.Seek([]byte(recordPrefix)); it.ValidForPrefix([]byte(recordPrefix)); it.Next() {
			key := it.Item().Key()
			if !hasSuffix(key, suffix) {
				continue
			}
			return it.Item().Value(func(v []byte) error {
				var rec datatypes.EvaluationRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return err
				}
				found = &rec
				return nil
			})
		}
		return nil
	})
	return found, err
}

// ForEach iterates all records in time order. fn returning false stops.
func (s *Store) ForEach(fn func(rec *datatypes.EvaluationRecord) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(recordPrefix)); it.ValidForPrefix([]byte(recordPrefix)); it.Next() {
			var stop bool
			err := it.Item().Value(func(v []byte) error {
				var rec datatypes.EvaluationRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					// A corrupt record is skipped, not fatal: the
					// log is advisory.
					s.logger.Warn("skipping unreadable record", "error", err)
					return nil
				}
				stop = !fn(&rec)
				return nil
			})
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(rec *datatypes.EvaluationRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", recordPrefix, rec.StartedAt.UnixNano(), rec.Query.ID))
}

func hasSuffix(b, suffix []byte) bool {
	if len(b) < len(suffix) {
		return false
	}
	tail := b[len(b)-len(suffix):]
	for i := range suffix {
		if tail[i] != suffix[i] {
			return false
		}
	}
	return true
}
