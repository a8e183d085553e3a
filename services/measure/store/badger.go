// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store keeps a local history of measurement records in BadgerDB.
//
// Records are keyed by name and completion time so the newest records of a
// function are found with one reverse prefix scan:
//
//	rec/<name> 0x00 <unix-nanos, 8 bytes big-endian> <record id, 16 bytes>
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/measure/services/measure/output"
)

var (
	// ErrNotFound indicates that no record exists for a name.
	ErrNotFound = errors.New("no measurement history")

	// ErrInvalidName indicates a name that cannot be used as a key.
	ErrInvalidName = errors.New("invalid measurement name")
)

const (
	recordPrefix = "rec/"
	nameSep      = 0x00
)

// Config holds configuration for the history database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the database in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil they are discarded.
	Logger *slog.Logger
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is a Writer that also serves record history.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db *badger.DB
}

// Open opens or creates the history database.
//
// Inputs:
//   - cfg: Path is required unless InMemory is set.
//
// Outputs:
//   - *BadgerStore: The store. Call Close when done.
//   - error: Non-nil if the directory or database cannot be opened.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens an in-memory store. Data is lost on Close.
func OpenInMemory() (*BadgerStore, error) {
	return Open(Config{InMemory: true})
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func namePrefix(name string) []byte {
	return append([]byte(recordPrefix+name), nameSep)
}

func recordKey(rec *output.Record) []byte {
	key := namePrefix(rec.Name)

	nanos := rec.Timestamp.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	key = binary.BigEndian.AppendUint64(key, uint64(nanos))
	return append(key, rec.ID[:]...)
}

func validateName(name string) error {
	if name == "" || strings.IndexByte(name, nameSep) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Write stores a record. Implements output.Writer.
//
// Outputs:
//   - error: Wraps output.ErrWrite on failure.
func (s *BadgerStore) Write(ctx context.Context, rec *output.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", output.ErrWrite, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: nil record", output.ErrWrite)
	}
	if err := validateName(rec.Name); err != nil {
		return fmt.Errorf("%w: %w", output.ErrWrite, err)
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding %q: %w", output.ErrWrite, rec.Name, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), value)
	})
	if err != nil {
		return fmt.Errorf("%w: storing %q: %w", output.ErrWrite, rec.Name, err)
	}
	return nil
}

// History returns up to limit records for name, newest first.
//
// Inputs:
//   - ctx: Checked between records.
//   - name: Measurement name.
//   - limit: Maximum records; <= 0 means no limit.
//
// Outputs:
//   - []*output.Record: Records newest first. Empty if none exist.
//   - error: Decode or context failure.
func (s *BadgerStore) History(ctx context.Context, name string, limit int) ([]*output.Record, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	prefix := namePrefix(name)
	var records []*output.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := &output.Record{}
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, rec)
			}); err != nil {
				return fmt.Errorf("decoding record %x: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the newest record for name.
//
// Outputs:
//   - error: ErrNotFound if no record exists.
func (s *BadgerStore) Latest(ctx context.Context, name string) (*output.Record, error) {
	records, err := s.History(ctx, name, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return records[0], nil
}

// Names returns every recorded name in key order.
func (s *BadgerStore) Names(ctx context.Context) ([]string, error) {
	var names []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		last := ""
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()[len(recordPrefix):]
			end := strings.IndexByte(string(key), nameSep)
			if end < 0 {
				continue
			}
			name := string(key[:end])
			if name != last {
				names = append(names, name)
				last = name
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

var _ output.Writer = (*BadgerStore)(nil)
