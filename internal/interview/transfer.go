package interview

import (
	"context"
	"fmt"
	"path"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// TransferManager pushes a completed audio artifact to the project's remote
// destination and marks the originating record processed.
type TransferManager struct {
	records      *RecordManager
	objects      ObjectStore
	destinations DestinationResolver
	dialer       RemoteDialer
	log          *logger.Logger
}

func NewTransferManager(records *RecordManager, objects ObjectStore, destinations DestinationResolver, dialer RemoteDialer, log *logger.Logger) *TransferManager {
	if log == nil {
		log = logger.New()
	}
	return &TransferManager{
		records:      records,
		objects:      objects,
		destinations: destinations,
		dialer:       dialer,
		log:          log.WithStage("transfer"),
	}
}

// HandleCompletedArtifact is invoked per completion event (bucket + artifact
// key). It maps the artifact back to its originating record, guards the
// record's state, streams the artifact to the remote destination and
// advances the record to processed.
func (t *TransferManager) HandleCompletedArtifact(ctx context.Context, bucket, artifactKey string) error {
	rec, err := t.lookupRecordForArtifact(ctx, artifactKey)
	if err != nil {
		return err
	}
	log := t.log.WithField("key", rec.Key).WithField("artifact", artifactKey)

	// Guards against transferring twice or before job completion.
	if rec.ProcessingStatus != StatusExtractionSubmitted {
		return &InvalidStateError{Key: rec.Key, Status: rec.ProcessingStatus, Expected: StatusExtractionSubmitted}
	}

	dest, err := t.destinations.Destination(rec.ProjectAcronym)
	if err != nil {
		return err
	}
	head, err := t.objects.HeadObject(ctx, bucket, artifactKey)
	if err != nil {
		return fmt.Errorf("heading artifact %s: %w", artifactKey, err)
	}

	session, err := t.dialer.Dial(ctx, dest)
	if err != nil {
		return fmt.Errorf("connecting to destination for project %s: %w", rec.ProjectAcronym, err)
	}
	defer session.Close()

	remotePath := path.Join(dest.Folder, rec.TargetBasename+path.Ext(artifactKey))
	copied, err := t.uploadUnlessPresent(ctx, session, bucket, artifactKey, remotePath, head.Size)
	if err != nil {
		return err
	}
	if copied {
		log.WithField("remote_path", remotePath).Info("artifact transferred")
	} else {
		log.WithField("remote_path", remotePath).Info("artifact already present remotely; skipped")
	}
	return t.records.MarkProcessed(ctx, rec)
}

// uploadUnlessPresent skips the copy when the remote file already exists with
// the same size; a size mismatch re-uploads.
func (t *TransferManager) uploadUnlessPresent(ctx context.Context, session RemoteSession, bucket, key, remotePath string, size int64) (bool, error) {
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := session.MkdirAll(dir); err != nil {
			return false, fmt.Errorf("creating remote directory %s: %w", dir, err)
		}
	}
	remoteSize, exists, err := session.Stat(remotePath)
	if err != nil {
		return false, fmt.Errorf("stating remote file %s: %w", remotePath, err)
	}
	if exists && remoteSize == size {
		return false, nil
	}
	w, err := session.Create(remotePath)
	if err != nil {
		return false, fmt.Errorf("creating remote file %s: %w", remotePath, err)
	}
	if err := t.objects.DownloadObject(ctx, bucket, key, w); err != nil {
		_ = w.Close()
		return false, fmt.Errorf("streaming %s to %s: %w", key, remotePath, err)
	}
	if err := w.Close(); err != nil {
		return false, fmt.Errorf("closing remote file %s: %w", remotePath, err)
	}
	return true, nil
}

// lookupRecordForArtifact maps a completed artifact key back to its
// originating video record. The transcoder names outputs after the source
// file, so the artifact stem matches the original filename stem; the
// instance directory narrows the search when the artifact carries one.
func (t *TransferManager) lookupRecordForArtifact(ctx context.Context, artifactKey string) (FileRecord, error) {
	stem := Stem(path.Base(artifactKey))
	instance := ""
	if parsed, err := ParsePath(artifactKey); err == nil {
		instance = parsed.InterviewID
	}
	records, err := t.records.ScanStatus(ctx)
	if err != nil {
		return FileRecord{}, err
	}
	var matches []FileRecord
	for _, rec := range records {
		if Stem(rec.OriginalFilename) != stem {
			continue
		}
		if instance != "" && rec.InterviewID != instance {
			continue
		}
		matches = append(matches, rec)
	}
	if len(matches) != 1 {
		return FileRecord{}, fmt.Errorf("%w: no unique status record for artifact %s (%d matches)", ErrNotFound, artifactKey, len(matches))
	}
	return matches[0], nil
}
