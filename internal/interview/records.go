package interview

import (
	"context"
	"errors"
	"fmt"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// RecordManager wraps the status store with the lifecycle rules: at-most-once
// registration per key, forward-only status transitions, and an attempt
// counter bumped on each forward transition.
type RecordManager struct {
	store StatusStore
	log   *logger.Logger
}

func NewRecordManager(store StatusStore, log *logger.Logger) *RecordManager {
	if log == nil {
		log = logger.New()
	}
	return &RecordManager{store: store, log: log}
}

// Register creates the record if its key is unknown. The duplicate outcome is
// reported, not raised: concurrent ingestion runs racing on the same object
// are expected and benign.
func (m *RecordManager) Register(ctx context.Context, rec FileRecord) (CreateOutcome, error) {
	if rec.Key == "" {
		return 0, fmt.Errorf("%w: record key is empty", ErrInvalidInput)
	}
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = StatusNew
	}
	if err := m.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Benign: a concurrent run won the registration race.
			m.log.WithField("key", rec.Key).Debug("record already registered")
			return AlreadyExists, nil
		}
		return 0, fmt.Errorf("registering %s: %w", rec.Key, err)
	}
	return Created, nil
}

func (m *RecordManager) Get(ctx context.Context, key string) (FileRecord, error) {
	return m.store.Get(ctx, key)
}

func (m *RecordManager) Delete(ctx context.Context, key string) error {
	return m.store.Delete(ctx, key)
}

func (m *RecordManager) ScanStatus(ctx context.Context, statuses ...ProcessingStatus) ([]FileRecord, error) {
	return m.store.Scan(ctx, statuses...)
}

// KnownKeys returns the set of object keys that already have a status record.
func (m *RecordManager) KnownKeys(ctx context.Context) (map[string]bool, error) {
	records, err := m.store.Scan(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.Key] = true
	}
	return known, nil
}

// MarkExtractionSubmitted advances a record from new to submitted and bumps
// its extraction attempt counter.
func (m *RecordManager) MarkExtractionSubmitted(ctx context.Context, rec FileRecord) error {
	if err := m.checkTransition(rec, StatusExtractionSubmitted); err != nil {
		return err
	}
	attempts := rec.AudioExtractionAttempts + 1
	return m.store.Update(ctx, rec.Key, RecordUpdate{
		Status:                  StatusExtractionSubmitted,
		AudioExtractionAttempts: &attempts,
	})
}

// MarkProcessed advances a record from submitted to processed and bumps its
// transfer attempt counter.
func (m *RecordManager) MarkProcessed(ctx context.Context, rec FileRecord) error {
	if err := m.checkTransition(rec, StatusProcessed); err != nil {
		return err
	}
	attempts := rec.SDHSTransferAttempts + 1
	return m.store.Update(ctx, rec.Key, RecordUpdate{
		Status:               StatusProcessed,
		SDHSTransferAttempts: &attempts,
	})
}

func (m *RecordManager) checkTransition(rec FileRecord, next ProcessingStatus) error {
	if !rec.ProcessingStatus.CanTransitionTo(next) {
		return &InvalidStateError{Key: rec.Key, Status: rec.ProcessingStatus, Expected: previousStatus(next)}
	}
	return nil
}

func previousStatus(s ProcessingStatus) ProcessingStatus {
	switch s {
	case StatusExtractionSubmitted:
		return StatusNew
	case StatusProcessed:
		return StatusExtractionSubmitted
	default:
		return ""
	}
}
