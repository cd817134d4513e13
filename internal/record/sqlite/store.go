// Package sqlite is a local record.Store backend. It keeps the same
// record-oriented contract as the hosted backend, which makes it usable for
// development and tests without network access.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		fields TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

func newID(col model.Collection) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return string(col) + "-" + hex.EncodeToString(b), nil
}

func (s *Store) CreateRecord(ctx context.Context, col model.Collection, fields map[string]any) (record.Record, error) {
	id, err := newID(col)
	if err != nil {
		return record.Record{}, err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return record.Record{}, fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, collection, fields, version, created_at) VALUES (?, ?, ?, 1, ?)`,
		id, string(col), string(data), time.Now().UTC(),
	)
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{ID: id, Collection: col, Fields: decodeFields(data), Version: "1"}, nil
}

// QueryRecords returns the collection's records in creation order, filtered
// by field equality. Filtering happens here rather than in SQL because
// fields are schemaless JSON; the collections involved stay small.
func (s *Store) QueryRecords(ctx context.Context, col model.Collection, filters ...record.Filter) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, version FROM records WHERE collection = ? ORDER BY rowid`, string(col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var id, fieldsJSON string
		var version int
		if err := rows.Scan(&id, &fieldsJSON, &version); err != nil {
			return nil, err
		}
		rec := record.Record{
			ID:         id,
			Collection: col,
			Fields:     decodeFields([]byte(fieldsJSON)),
			Version:    strconv.Itoa(version),
		}
		if matchesFilters(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *Store) GetRecord(ctx context.Context, col model.Collection, id string) (record.Record, error) {
	var fieldsJSON string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT fields, version FROM records WHERE collection = ? AND id = ?`, string(col), id,
	).Scan(&fieldsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}
	return record.Record{
		ID:         id,
		Collection: col,
		Fields:     decodeFields([]byte(fieldsJSON)),
		Version:    strconv.Itoa(version),
	}, nil
}

func (s *Store) UpdateRecord(ctx context.Context, col model.Collection, id string, fields map[string]any, ifVersion string) (record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return record.Record{}, err
	}
	defer tx.Rollback()

	var fieldsJSON string
	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT fields, version FROM records WHERE collection = ? AND id = ?`, string(col), id,
	).Scan(&fieldsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}

	if ifVersion != "" && ifVersion != strconv.Itoa(version) {
		return record.Record{}, record.ErrConflict
	}

	merged := decodeFields([]byte(fieldsJSON))
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return record.Record{}, fmt.Errorf("encode fields: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET fields = ?, version = version + 1 WHERE id = ?`, string(data), id,
	); err != nil {
		return record.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return record.Record{}, err
	}
	return record.Record{
		ID:         id,
		Collection: col,
		Fields:     merged,
		Version:    strconv.Itoa(version + 1),
	}, nil
}

func decodeFields(data []byte) map[string]any {
	fields := make(map[string]any)
	_ = json.Unmarshal(data, &fields)
	return fields
}

func matchesFilters(rec record.Record, filters []record.Filter) bool {
	for _, f := range filters {
		if fmt.Sprintf("%v", rec.Fields[f.Field]) != fmt.Sprintf("%v", f.Equals) {
			return false
		}
	}
	return true
}
