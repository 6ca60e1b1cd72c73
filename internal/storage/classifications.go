package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/onion-topology/internal/classification"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/model"
)

// History actions.
const (
	ActionSave  = "save"
	ActionClear = "clear"
)

// HistoryEntry is one change to the classification record of a file layout.
type HistoryEntry struct {
	CreatedAt   time.Time
	Fingerprint model.HeaderFingerprint
	Action      string
	DoorCount   int
}

// SaveColumnMapping replaces the column mapping stored for fp.
func (s *SQLiteStorage) SaveColumnMapping(ctx context.Context, fp model.HeaderFingerprint, mapping model.ColumnMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM column_mappings WHERE fingerprint = ?`, string(fp)); err != nil {
			return fmt.Errorf("failed to clear column mapping: %w", err)
		}
		for column, role := range mapping {
			canonical, _ := model.ParseRole(string(role))
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO column_mappings (fingerprint, column_name, role)
				VALUES (?, ?, ?)
			`, string(fp), column, string(canonical)); err != nil {
				return fmt.Errorf("failed to save column %q: %w", column, err)
			}
		}
		return nil
	})
}

// GetColumnMapping returns the column mapping saved for fp, or common.ErrNotFound.
func (s *SQLiteStorage) GetColumnMapping(ctx context.Context, fp model.HeaderFingerprint) (model.ColumnMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, role FROM column_mappings
		WHERE fingerprint = ?
		ORDER BY column_name
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to query column mapping: %w", err)
	}
	defer func() { _ = rows.Close() }()

	mapping := make(model.ColumnMapping)
	for rows.Next() {
		var column, role string
		if err := rows.Scan(&column, &role); err != nil {
			return nil, fmt.Errorf("failed to scan column mapping: %w", err)
		}
		mapping[column] = model.Role(role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column mapping: %w", err)
	}

	if len(mapping) == 0 {
		return nil, fmt.Errorf("column mapping for %s: %w", fp, common.ErrNotFound)
	}
	return mapping, nil
}

// SaveClassificationRecord replaces the record stored for fp and appends a history
// entry. Records for other fingerprints are untouched.
func (s *SQLiteStorage) SaveClassificationRecord(ctx context.Context, fp model.HeaderFingerprint, rec model.ClassificationRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFingerprint(fp); err != nil {
		return err
	}
	if err := validateRecord(rec); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM door_classifications WHERE fingerprint = ?`, string(fp)); err != nil {
			return fmt.Errorf("failed to clear classifications: %w", err)
		}
		for door, c := range rec {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO door_classifications (
					fingerprint, door_id, floor, is_entrance_exit, is_stair, security_level
				) VALUES (?, ?, ?, ?, ?, ?)
			`,
				string(fp),
				door,
				c.Floor,
				nullBool(c.IsEntranceExit),
				nullBool(c.IsStair),
				string(c.SecurityLevel),
			); err != nil {
				return fmt.Errorf("failed to save classification for %q: %w", door, err)
			}
		}
		return appendHistory(ctx, tx, fp, ActionSave, len(rec))
	})
}

// GetClassificationRecord returns the record saved for fp, or common.ErrNotFound.
func (s *SQLiteStorage) GetClassificationRecord(ctx context.Context, fp model.HeaderFingerprint) (model.ClassificationRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	records, err := s.loadRecords(ctx, `WHERE fingerprint = ?`, string(fp))
	if err != nil {
		return nil, err
	}
	rec, ok := records[fp]
	if !ok {
		return nil, fmt.Errorf("classification record for %s: %w", fp, common.ErrNotFound)
	}
	return rec, nil
}

// LoadClassificationCache reads every stored record into a cache.
func (s *SQLiteStorage) LoadClassificationCache(ctx context.Context) (classification.Cache, error) {
	if err := validateContext(ctx); err != nil {
		return classification.Cache{}, err
	}

	records, err := s.loadRecords(ctx, "")
	if err != nil {
		return classification.Cache{}, err
	}
	return classification.NewCache(records), nil
}

// ClearClassificationRecord deletes the record stored for fp. It returns
// common.ErrNotFound when there was nothing to delete.
func (s *SQLiteStorage) ClearClassificationRecord(ctx context.Context, fp model.HeaderFingerprint) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM door_classifications WHERE fingerprint = ?`, string(fp))
		if err != nil {
			return fmt.Errorf("failed to clear classifications: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if removed == 0 {
			return fmt.Errorf("classification record for %s: %w", fp, common.ErrNotFound)
		}
		return appendHistory(ctx, tx, fp, ActionClear, int(removed))
	})
}

// ClassificationHistory lists the changes recorded for fp, oldest first.
func (s *SQLiteStorage) ClassificationHistory(ctx context.Context, fp model.HeaderFingerprint) ([]HistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, action, door_count, created_at
		FROM classification_history
		WHERE fingerprint = ?
		ORDER BY id
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("failed to query classification history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e   HistoryEntry
			raw string
		)
		if err := rows.Scan(&raw, &e.Action, &e.DoorCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Fingerprint = model.HeaderFingerprint(raw)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) loadRecords(ctx context.Context, where string, args ...any) (map[model.HeaderFingerprint]model.ClassificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, door_id, floor, is_entrance_exit, is_stair, security_level
		FROM door_classifications `+where+`
		ORDER BY fingerprint, door_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make(map[model.HeaderFingerprint]model.ClassificationRecord)
	for rows.Next() {
		var (
			fp, door, floor, level string
			entrance, stair        sql.NullBool
		)
		if err := rows.Scan(&fp, &door, &floor, &entrance, &stair, &level); err != nil {
			return nil, fmt.Errorf("failed to scan classification: %w", err)
		}

		key := model.HeaderFingerprint(fp)
		if records[key] == nil {
			records[key] = make(model.ClassificationRecord)
		}
		records[key][door] = model.DoorClassification{
			Floor:          floor,
			IsEntranceExit: fromNullBool(entrance),
			IsStair:        fromNullBool(stair),
			SecurityLevel:  model.SecurityLevel(level),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classifications: %w", err)
	}
	return records, nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, fp model.HeaderFingerprint, action string, doors int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO classification_history (fingerprint, action, door_count)
		VALUES (?, ?, ?)
	`, string(fp), action, doors)
	if err != nil {
		return fmt.Errorf("failed to save classification history: %w", err)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func fromNullBool(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	return model.Bool(b.Bool)
}
