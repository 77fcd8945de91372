// Package db stores served predictions in sqlite.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Brownie44l1/fkp-api/internal/model"
)

// timeLayout is fixed-width so created_at sorts lexically. The column is
// TEXT: the sqlite driver rewrites TIMESTAMP columns through time.Time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no prediction has the requested id.
var ErrNotFound = model.ErrNotFound

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// RecordPrediction implements model.Recorder.
func (db *DB) RecordPrediction(ctx context.Context, r model.Record) error {
	kp, err := json.Marshal(r.Keypoints)
	if err != nil {
		return fmt.Errorf("failed to encode keypoints: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO predictions (prediction_id, backend, image_size, keypoints_json, elapsed_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Backend, r.ImageSize, string(kp), int64(r.Elapsed), r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// GetPrediction loads one prediction by id.
func (db *DB) GetPrediction(ctx context.Context, id string) (model.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT prediction_id, backend, image_size, keypoints_json, elapsed_ns, created_at
		FROM predictions WHERE prediction_id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	return r, err
}

// RecentPredictions returns up to limit predictions, newest first.
func (db *DB) RecentPredictions(ctx context.Context, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT prediction_id, backend, image_size, keypoints_json, elapsed_ns, created_at
		FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	out := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.Record, error) {
	var (
		r         model.Record
		kp        string
		elapsed   int64
		createdAt string
	)
	if err := s.Scan(&r.ID, &r.Backend, &r.ImageSize, &kp, &elapsed, &createdAt); err != nil {
		return model.Record{}, err
	}
	if err := json.Unmarshal([]byte(kp), &r.Keypoints); err != nil {
		return model.Record{}, fmt.Errorf("failed to decode keypoints for %s: %w", r.ID, err)
	}
	// RFC3339Nano also accepts the fixed-width fraction written by timeLayout.
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Record{}, fmt.Errorf("failed to parse created_at for %s: %w", r.ID, err)
	}
	r.Elapsed = time.Duration(elapsed)
	r.CreatedAt = t
	return r, nil
}
