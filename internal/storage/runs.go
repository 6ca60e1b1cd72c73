package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/onion-topology/internal/model"
)

// SessionRun records the outcome of one generate run.
type SessionRun struct {
	CreatedAt    time.Time
	SessionID    string
	Fingerprint  model.HeaderFingerprint
	Status       string
	OriginalRows int
	CleanedRows  int
}

// RecordSessionRun appends a run to the run log.
func (s *SQLiteStorage) RecordSessionRun(ctx context.Context, run SessionRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(run.SessionID, "session ID"); err != nil {
		return err
	}
	if err := validateString(run.Status, "status"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_runs (session_id, fingerprint, status, original_rows, cleaned_rows)
		VALUES (?, ?, ?, ?, ?)
	`, run.SessionID, string(run.Fingerprint), run.Status, run.OriginalRows, run.CleanedRows)
	if err != nil {
		return fmt.Errorf("failed to record session run: %w", err)
	}
	return nil
}

// RecentSessionRuns returns up to limit runs, newest first.
func (s *SQLiteStorage) RecentSessionRuns(ctx context.Context, limit int) ([]SessionRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, fingerprint, status, original_rows, cleaned_rows, created_at
		FROM session_runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []SessionRun
	for rows.Next() {
		var (
			r  SessionRun
			fp string
		)
		if err := rows.Scan(&r.SessionID, &fp, &r.Status, &r.OriginalRows, &r.CleanedRows, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session run: %w", err)
		}
		r.Fingerprint = model.HeaderFingerprint(fp)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
