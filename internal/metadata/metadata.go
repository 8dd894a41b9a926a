// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metadata stores the records describing registered track files.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a file identifier is not registered.
var ErrNotFound = errors.New("file not found")

// File describes a registered track file.  FilePath is never serialized so
// that storage locations are not disclosed to clients.
type File struct {
	ID         string `db:"id" json:"_id"`
	UserID     string `db:"user_id" json:"user_id"`
	FilePath   string `db:"file_path" json:"-"`
	FileType   string `db:"file_type" json:"file_type"`
	DataType   string `db:"data_type" json:"data_type"`
	TaxonID    int64  `db:"taxon_id" json:"taxon_id"`
	Assembly   string `db:"assembly" json:"assembly"`
	Compressed bool   `db:"compressed" json:"compressed"`
	// Created is the registration time in seconds since the Unix epoch.
	Created int64 `db:"created" json:"creation_time"`

	Sources []string          `db:"-" json:"source_id"`
	Meta    map[string]string `db:"-" json:"meta_data"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		file_path TEXT NOT NULL,
		file_type VARCHAR(32) NOT NULL,
		data_type VARCHAR(64) NOT NULL DEFAULT '',
		taxon_id BIGINT NOT NULL DEFAULT 0,
		assembly VARCHAR(64) NOT NULL DEFAULT '',
		compressed INTEGER NOT NULL DEFAULT 0,
		created BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS file_sources (
		file_id VARCHAR(64) NOT NULL,
		source_id VARCHAR(64) NOT NULL,
		PRIMARY KEY (file_id, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS file_meta (
		file_id VARCHAR(64) NOT NULL,
		meta_key VARCHAR(255) NOT NULL,
		meta_value TEXT NOT NULL,
		PRIMARY KEY (file_id, meta_key)
	)`,
}

const fileColumns = "id, user_id, file_path, file_type, data_type, taxon_id, assembly, compressed, created"

// Store is a metadata database.  It is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to the database, retrying with exponential backoff for up to
// timeout, and creates the schema if necessary.  driver is "sqlite" or
// "mysql".
func Open(ctx context.Context, driver, dsn string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if driver == "sqlite" && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout

	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, driver, dsn)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("connecting to metadata database", zap.String("driver", driver), zap.Error(err), zap.Duration("retry_in", wait))
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	logger.Info("opened metadata database", zap.String("driver", driver))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetFileByID returns the file registered as id.
func (s *Store) GetFileByID(ctx context.Context, id string) (*File, error) {
	var f File
	query := s.db.Rebind("SELECT " + fileColumns + " FROM files WHERE id = ?")
	if err := s.db.GetContext(ctx, &f, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying file %q: %w", id, err)
	}
	files := []*File{&f}
	if err := s.loadDetails(ctx, files); err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFilesByUser returns every file owned by user, oldest first.
func (s *Store) GetFilesByUser(ctx context.Context, user string) ([]*File, error) {
	return s.selectFiles(ctx, "user_id = ?", user)
}

// GetFilesByAssembly returns every file registered against assembly, oldest
// first.
func (s *Store) GetFilesByAssembly(ctx context.Context, assembly string) ([]*File, error) {
	return s.selectFiles(ctx, "assembly = ?", assembly)
}

func (s *Store) selectFiles(ctx context.Context, where string, args ...interface{}) ([]*File, error) {
	var files []*File
	query := s.db.Rebind("SELECT " + fileColumns + " FROM files WHERE " + where + " ORDER BY created, id")
	if err := s.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	if err := s.loadDetails(ctx, files); err != nil {
		return nil, err
	}
	return files, nil
}

// loadDetails fills the sources and metadata of files.
func (s *Store) loadDetails(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}
	byID := make(map[string]*File, len(files))
	ids := make([]string, 0, len(files))
	for _, f := range files {
		f.Sources = []string{}
		f.Meta = map[string]string{}
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}

	query, args, err := sqlx.In("SELECT file_id, source_id FROM file_sources WHERE file_id IN (?) ORDER BY source_id", ids)
	if err != nil {
		return fmt.Errorf("building sources query: %w", err)
	}
	var sources []struct {
		FileID   string `db:"file_id"`
		SourceID string `db:"source_id"`
	}
	if err := s.db.SelectContext(ctx, &sources, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("querying sources: %w", err)
	}
	for _, src := range sources {
		byID[src.FileID].Sources = append(byID[src.FileID].Sources, src.SourceID)
	}

	query, args, err = sqlx.In("SELECT file_id, meta_key, meta_value FROM file_meta WHERE file_id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building metadata query: %w", err)
	}
	var meta []struct {
		FileID string `db:"file_id"`
		Key    string `db:"meta_key"`
		Value  string `db:"meta_value"`
	}
	if err := s.db.SelectContext(ctx, &meta, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("querying metadata: %w", err)
	}
	for _, m := range meta {
		byID[m.FileID].Meta[m.Key] = m.Value
	}
	return nil
}

// GetFileHistory returns the files id was derived from, nearest first.  Each
// ancestor is listed once even if it is reachable along several paths.
func (s *Store) GetFileHistory(ctx context.Context, id string) ([]*File, error) {
	f, err := s.GetFileByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var history []*File
	seen := map[string]bool{f.ID: true}
	queue := append([]string(nil), f.Sources...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true

		parent, err := s.GetFileByID(ctx, next)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("dangling source reference", zap.String("file_id", id), zap.String("source_id", next))
			continue
		}
		if err != nil {
			return nil, err
		}
		history = append(history, parent)
		queue = append(queue, parent.Sources...)
	}
	return history, nil
}

// AddFile registers f and returns its newly assigned identifier.  Every
// source must already be registered.
func (s *Store) AddFile(ctx context.Context, f *File) (string, error) {
	switch {
	case f.UserID == "":
		return "", errors.New("missing user")
	case f.FilePath == "":
		return "", errors.New("missing file path")
	case f.FileType == "":
		return "", errors.New("missing file type")
	}

	id := uuid.New().String()
	created := s.now().Unix()
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, source := range f.Sources {
			var count int
			if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM files WHERE id = ?"), source); err != nil {
				return fmt.Errorf("checking source %q: %w", source, err)
			}
			if count == 0 {
				return fmt.Errorf("source %w: %q", ErrNotFound, source)
			}
		}

		query := tx.Rebind("INSERT INTO files (" + fileColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, id, f.UserID, f.FilePath, strings.ToLower(f.FileType), f.DataType, f.TaxonID, f.Assembly, f.Compressed, created); err != nil {
			return fmt.Errorf("inserting file: %w", err)
		}
		for _, source := range f.Sources {
			if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO file_sources (file_id, source_id) VALUES (?, ?)"), id, source); err != nil {
				return fmt.Errorf("inserting source %q: %w", source, err)
			}
		}
		return putMeta(ctx, tx, id, f.Meta)
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("registered file", zap.String("file_id", id), zap.String("user_id", f.UserID))
	return id, nil
}

func putMeta(ctx context.Context, tx *sqlx.Tx, id string, meta map[string]string) error {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM file_meta WHERE file_id = ? AND meta_key = ?"), id, k); err != nil {
			return fmt.Errorf("replacing metadata %q: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO file_meta (file_id, meta_key, meta_value) VALUES (?, ?, ?)"), id, k, meta[k]); err != nil {
			return fmt.Errorf("inserting metadata %q: %w", k, err)
		}
	}
	return nil
}

// AddMeta sets the metadata keys of file id, replacing existing values.
func (s *Store) AddMeta(ctx context.Context, id string, meta map[string]string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, id); err != nil {
			return err
		}
		return putMeta(ctx, tx, id, meta)
	})
}

// RemoveMeta deletes the metadata keys of file id.  Absent keys are ignored.
func (s *Store) RemoveMeta(ctx context.Context, id string, keys []string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, id); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM file_meta WHERE file_id = ? AND meta_key = ?"), id, k); err != nil {
				return fmt.Errorf("removing metadata %q: %w", k, err)
			}
		}
		return nil
	})
}

// RemoveFile deletes file id together with its metadata and source links.
func (s *Store) RemoveFile(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := exists(ctx, tx, id); err != nil {
			return err
		}
		for _, stmt := range []string{
			"DELETE FROM file_meta WHERE file_id = ?",
			"DELETE FROM file_sources WHERE file_id = ?",
			"DELETE FROM files WHERE id = ?",
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), id); err != nil {
				return fmt.Errorf("removing file %q: %w", id, err)
			}
		}
		return nil
	})
}

func exists(ctx context.Context, tx *sqlx.Tx, id string) error {
	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM files WHERE id = ?"), id); err != nil {
		return fmt.Errorf("querying file %q: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
