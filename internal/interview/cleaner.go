package interview

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// DefaultRetentionWindow is how long a processed record's objects stay in the
// buckets before archival.
const DefaultRetentionWindow = 7 * 24 * time.Hour

// Cleaner archives processed records past the retention window: source and
// derived objects are deleted from both buckets, the record is copied to the
// audit store and only then removed from the status store.
type Cleaner struct {
	records        *RecordManager
	audit          AuditStore
	objects        ObjectStore
	incomingBucket string
	audioBucket    string
	retention      time.Duration
	now            func() time.Time
	log            *logger.Logger
}

type CleanerConfig struct {
	IncomingBucket string
	AudioBucket    string
	Retention      time.Duration
	Now            func() time.Time
}

func NewCleaner(records *RecordManager, audit AuditStore, objects ObjectStore, cfg CleanerConfig, log *logger.Logger) *Cleaner {
	if log == nil {
		log = logger.New()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cleaner{
		records:        records,
		audit:          audit,
		objects:        objects,
		incomingBucket: cfg.IncomingBucket,
		audioBucket:    cfg.AudioBucket,
		retention:      retention,
		now:            now,
		log:            log.WithStage("clean"),
	}
}

// Run archives every eligible record and returns how many it archived.
// Records exactly at the retention boundary are archived.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	processed, err := c.records.ScanStatus(ctx, StatusProcessed)
	if err != nil {
		return 0, err
	}
	cutoff := c.now().Add(-c.retention)

	archived := 0
	var errs []error
	for _, rec := range processed {
		if rec.UploadedAt.After(cutoff) {
			continue
		}
		if err := c.archive(ctx, rec); err != nil {
			c.log.WithError(err).WithField("key", rec.Key).Error("archival failed; record left for next run")
			errs = append(errs, err)
			continue
		}
		c.log.WithField("key", rec.Key).Info("record archived")
		archived++
	}
	return archived, errors.Join(errs...)
}

func (c *Cleaner) archive(ctx context.Context, rec FileRecord) error {
	stem := Stem(rec.OriginalFilename)
	incomingKeys := []string{
		rec.Key,
		path.Join(rec.InterviewID, "audio", stem+".flac"),
	}
	if err := c.objects.DeleteObjects(ctx, c.incomingBucket, incomingKeys); err != nil {
		return fmt.Errorf("deleting incoming objects for %s: %w", rec.Key, err)
	}
	if err := c.objects.DeleteObjects(ctx, c.audioBucket, []string{stem + ".mp3"}); err != nil {
		return fmt.Errorf("deleting audio artifact for %s: %w", rec.Key, err)
	}
	// Copy must land in the audit store before the status record goes away;
	// a crash between the two steps leaves a re-runnable duplicate, never a
	// lost record.
	if err := c.audit.Archive(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateArchive) {
			c.log.WithField("key", rec.Key).Warn("record was already archived; resuming deletion")
		} else {
			return fmt.Errorf("copying %s to audit store: %w", rec.Key, err)
		}
	}
	return c.records.Delete(ctx, rec.Key)
}
