package interview

import (
	"context"
	"errors"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// Dispatcher scans for freshly registered records and submits one audio
// extraction job per record. A failed submission leaves the record in "new";
// the next scheduled scan is the retry mechanism.
type Dispatcher struct {
	records   *RecordManager
	transcode TranscodeService
	log       *logger.Logger
}

func NewDispatcher(records *RecordManager, transcode TranscodeService, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.New()
	}
	return &Dispatcher{records: records, transcode: transcode, log: log.WithStage("dispatch")}
}

// Run submits a transcode job for every record in "new" state and advances
// each successfully submitted record. It keeps going past individual
// failures and reports them joined.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	newRecords, err := d.records.ScanStatus(ctx, StatusNew)
	if err != nil {
		return 0, err
	}
	d.log.WithField("count", len(newRecords)).Info("records awaiting audio extraction")

	submitted := 0
	var errs []error
	for _, rec := range newRecords {
		log := d.log.WithField("key", rec.Key)
		jobID, err := d.transcode.SubmitAudioExtraction(ctx, rec.SourceBucket, rec.Key)
		if err != nil {
			log.WithError(err).Error("audio extraction job submission failed; record left for next run")
			errs = append(errs, err)
			continue
		}
		if err := d.records.MarkExtractionSubmitted(ctx, rec); err != nil {
			log.WithError(err).Error("failed to advance record after job submission")
			errs = append(errs, err)
			continue
		}
		log.WithField("job_id", jobID).Info("audio extraction job submitted")
		submitted++
	}
	return submitted, errors.Join(errs...)
}
