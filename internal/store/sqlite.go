package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/civitasgis/ageo-edge/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed durable submission queue.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs
// migrations. Open failures are wrapped with ErrUnavailable so callers can
// degrade to direct-network-only behavior.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w: %w", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w: %w", ErrUnavailable, err)
	}

	// Enable pragmas for performance and safety
	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w: %w", ErrUnavailable, err)
	}

	// Run goose migrations
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w: %w", ErrUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put persists a queue record and its attachments in a single transaction.
// The record ID is a monotonic ULID, so IDs strictly increase and sort by
// creation time.
func (s *SQLiteStore) Put(ctx context.Context, rec *types.QueueRecord, atts []types.Attachment) (string, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Method == "" {
		rec.Method = "POST"
	}

	payload, err := msgpack.Marshal(rec.Fields)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w: %w", ErrUnavailable, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_records (id, url, method, kind, payload, synced, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)
	`, rec.ID, rec.URL, rec.Method, string(rec.Kind), payload, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert record: %w: %w", ErrUnavailable, err)
	}

	for i := range atts {
		att := &atts[i]
		if att.ID == "" {
			att.ID = ulid.Make().String()
		}
		att.ParentID = rec.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (id, parent_id, field, filename, content_type, data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, att.ID, att.ParentID, att.Field, att.Filename, att.ContentType, att.Data)
		if err != nil {
			return "", fmt.Errorf("insert attachment: %w: %w", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w: %w", ErrUnavailable, err)
	}

	return rec.ID, nil
}

// Get retrieves a queue record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.QueueRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, method, kind, payload, synced, attempts, last_error, created_at
		FROM queue_records
		WHERE id = ?
	`, id)

	rec, err := scanQueueRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	return rec, nil
}

// List retrieves queue records ordered by creation time, oldest first.
// By default only pending (unsynced) records are returned.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]types.QueueRecord, error) {
	query := `
		SELECT id, url, method, kind, payload, synced, attempts, last_error, created_at
		FROM queue_records
		WHERE 1=1
	`
	var args []any

	if !filter.IncludeSynced {
		query += " AND synced = 0"
	}
	if filter.URL != "" {
		query += " AND url = ?"
		args = append(args, filter.URL)
	}

	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []types.QueueRecord
	for rows.Next() {
		rec, err := scanQueueRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// GetAttachments retrieves the binary parts owned by a queue record.
func (s *SQLiteStore) GetAttachments(ctx context.Context, parentID string) ([]types.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, field, filename, content_type, data
		FROM attachments
		WHERE parent_id = ?
		ORDER BY id ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var atts []types.Attachment
	for rows.Next() {
		var att types.Attachment
		if err := rows.Scan(&att.ID, &att.ParentID, &att.Field, &att.Filename, &att.ContentType, &att.Data); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		atts = append(atts, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return atts, nil
}

// DeleteByID removes a record and, via the foreign key cascade, its
// attachments. Deleting a missing ID is a no-op so cleanup retries are safe.
func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM queue_records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// MarkAttempt records a failed replay attempt. The payload itself is never
// touched; attempt bookkeeping is metadata only.
func (s *SQLiteStore) MarkAttempt(ctx context.Context, id string, attemptErr string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_records
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, attemptErr, id)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CountPending returns the number of records awaiting sync.
func (s *SQLiteStore) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_records WHERE synced = 0").Scan(&count)
	return count, err
}

// Stats returns aggregate queue statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*types.QueueStats, error) {
	stats := &types.QueueStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_records WHERE synced = 0").Scan(&stats.Pending); err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attachments").Scan(&stats.Attachments); err != nil {
		return nil, fmt.Errorf("count attachments: %w", err)
	}

	var oldest sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at) FROM queue_records WHERE synced = 0").Scan(&oldest)
	if err != nil {
		return nil, fmt.Errorf("oldest pending: %w", err)
	}
	if oldest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, oldest.String); err == nil {
			stats.OldestAt = &t
		}
	}

	return stats, nil
}

// scanQueueRecord scans a row into a QueueRecord, decoding the msgpack payload.
func scanQueueRecord(scanner interface{ Scan(...any) error }) (*types.QueueRecord, error) {
	var rec types.QueueRecord
	var kind string
	var payload []byte
	var synced int
	var lastError sql.NullString
	var createdAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.URL,
		&rec.Method,
		&kind,
		&payload,
		&synced,
		&rec.Attempts,
		&lastError,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = types.RecordKind(kind)
	rec.Synced = synced != 0
	if lastError.Valid {
		rec.LastError = lastError.String
	}

	if err := msgpack.Unmarshal(payload, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}

	return &rec, nil
}
