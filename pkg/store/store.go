// Package store keeps the last known board in sqlite so a restarted client
// has something to show before any transport connects.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/livesync/pkg/model"
)

const latestID = "latest"

type Store struct {
	database *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{database: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS snapshots (
		id text not null primary key,
		content text not null,
		saved_at timestamp not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.database.Close()
}

// Save writes doc as the latest snapshot. It reports false when the stored
// content was already identical.
func (s *Store) Save(ctx context.Context, doc model.Document) (bool, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	res, err := s.database.ExecContext(
		ctx, `INSERT INTO snapshots (id, content, saved_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET content = excluded.content, saved_at = excluded.saved_at
		WHERE snapshots.content != excluded.content`,
		latestID,
		string(content),
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Load returns the latest snapshot and whether one existed.
func (s *Store) Load(ctx context.Context) (model.Document, bool, error) {
	var content string
	err := s.database.QueryRowContext(ctx, `SELECT content FROM snapshots WHERE id = ?`, latestID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, false, nil
	} else if err != nil {
		return model.Document{}, false, fmt.Errorf("failed to query snapshot: %w", err)
	}
	var doc model.Document
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return model.Document{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return doc, true, nil
}

// Backup saves source() every interval until ctx is cancelled.
func (s *Store) Backup(ctx context.Context, source func() model.Document, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if saved, err := s.Save(ctx, source()); err != nil {
				slog.Error("failed to back up snapshot", "err", err)
			} else if saved {
				slog.Info("backed up snapshot")
			}
		case <-ctx.Done():
			slog.Info("stopping scheduled backup")
			return
		}
	}
}
