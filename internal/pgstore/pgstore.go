// Package pgstore backs the status and audit stores with Postgres for
// deployments that keep their tracking tables in an existing database.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/civichealth/interviewrelay/internal/interview"
)

const (
	statusTableName  = "interview_status"
	auditTableName   = "interview_audit"
	operationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// StatusStore keeps one row per tracked file. The record travels as a JSON
// payload; the processing status is mirrored into its own column so scans can
// filter server-side.
type StatusStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewStatusStore(dsn string) (*StatusStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, interview.ErrInvalidInput
	}
	return &StatusStore{dsn: dsn, openDB: sql.Open}, nil
}

func (s *StatusStore) Create(ctx context.Context, rec interview.FileRecord) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, processing_status, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO NOTHING`, quoteIdentifier(statusTableName))
	result, err := s.db.ExecContext(ctx, query, rec.Key, string(rec.ProcessingStatus), string(payload))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", interview.ErrDuplicateKey, rec.Key)
	}
	return nil
}

func (s *StatusStore) Get(ctx context.Context, key string) (interview.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return interview.FileRecord{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT payload FROM %s WHERE id = $1", quoteIdentifier(statusTableName))
	var payload string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return interview.FileRecord{}, fmt.Errorf("%w: %s", interview.ErrNotFound, key)
	}
	if err != nil {
		return interview.FileRecord{}, err
	}
	var rec interview.FileRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return interview.FileRecord{}, err
	}
	return rec, nil
}

// Update rewrites the stored payload under a row lock so concurrent stage
// runs cannot interleave partial field updates.
func (s *StatusStore) Update(ctx context.Context, key string, update interview.RecordUpdate) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf("SELECT payload FROM %s WHERE id = $1 FOR UPDATE", quoteIdentifier(statusTableName))
	var payload string
	err = tx.QueryRowContext(ctx, selectQuery, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", interview.ErrNotFound, key)
	}
	if err != nil {
		return err
	}
	var rec interview.FileRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return err
	}
	if update.Status != "" {
		rec.ProcessingStatus = update.Status
	}
	if update.AudioExtractionAttempts != nil {
		rec.AudioExtractionAttempts = *update.AudioExtractionAttempts
	}
	if update.SDHSTransferAttempts != nil {
		rec.SDHSTransferAttempts = *update.SDHSTransferAttempts
	}
	updated, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	updateQuery := fmt.Sprintf(`
		UPDATE %s SET processing_status = $2, payload = $3, updated_at = NOW()
		WHERE id = $1`, quoteIdentifier(statusTableName))
	if _, err := tx.ExecContext(ctx, updateQuery, key, string(rec.ProcessingStatus), string(updated)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *StatusStore) Delete(ctx context.Context, key string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", quoteIdentifier(statusTableName))
	result, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", interview.ErrNotFound, key)
	}
	return nil
}

func (s *StatusStore) Scan(ctx context.Context, statuses ...interview.ProcessingStatus) ([]interview.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT payload FROM %s", quoteIdentifier(statusTableName))
	args := []any{}
	if len(statuses) > 0 {
		wanted := make([]string, 0, len(statuses))
		for _, status := range statuses {
			wanted = append(wanted, string(status))
		}
		query += " WHERE processing_status = ANY($1)"
		args = append(args, pq.Array(wanted))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interview.FileRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec interview.FileRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *StatusStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *StatusStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				processing_status TEXT NOT NULL,
				payload TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(statusTableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

// AuditStore is the archive table counterpart; rows are insert-only.
type AuditStore struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewAuditStore(dsn string) (*AuditStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, interview.ErrInvalidInput
	}
	return &AuditStore{dsn: dsn, openDB: sql.Open}, nil
}

func (s *AuditStore) Archive(ctx context.Context, rec interview.FileRecord) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, payload, archived_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO NOTHING`, quoteIdentifier(auditTableName))
	result, err := s.db.ExecContext(ctx, query, rec.Key, string(payload))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", interview.ErrDuplicateArchive, rec.Key)
	}
	return nil
}

func (s *AuditStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *AuditStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(auditTableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
