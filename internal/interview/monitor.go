package interview

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// DefaultIgnoreExtensions are derived audio artifacts that land in the
// incoming bucket next to the source recordings and must not be re-ingested.
var DefaultIgnoreExtensions = []string{".mp3", ".flac"}

// Monitor walks the incoming bucket, resolves each new candidate object to a
// project and participant, and registers a status record for it.
type Monitor struct {
	objects          ObjectStore
	records          *RecordManager
	projects         ProjectStore
	resolver         *Resolver
	bucket           string
	ignoreExtensions map[string]bool
	log              *logger.Logger
}

type MonitorConfig struct {
	Bucket           string
	IgnoreExtensions []string
}

func NewMonitor(objects ObjectStore, records *RecordManager, projects ProjectStore, resolver *Resolver, cfg MonitorConfig, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.New()
	}
	extensions := cfg.IgnoreExtensions
	if extensions == nil {
		extensions = DefaultIgnoreExtensions
	}
	ignore := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ignore[strings.ToLower(ext)] = true
	}
	return &Monitor{
		objects:          objects,
		records:          records,
		projects:         projects,
		resolver:         resolver,
		bucket:           cfg.Bucket,
		ignoreExtensions: ignore,
		log:              log.WithStage("monitor"),
	}
}

// Run performs one ingestion pass and returns the keys it registered.
// Per-object resolution failures are logged and skipped: one malformed file
// must not block ingestion of the rest. Concurrent runs racing on the same
// object are settled by the store's conditional create.
func (m *Monitor) Run(ctx context.Context) ([]string, error) {
	activeProjects, err := m.projects.ActiveProjects(ctx)
	if err != nil {
		return nil, err
	}
	known, err := m.records.KnownKeys(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := m.objects.ListObjects(ctx, m.bucket)
	if err != nil {
		return nil, err
	}

	var registered []string
	for _, obj := range objects {
		log := m.log.WithField("key", obj.Key)
		if !m.candidate(obj.Key, known) {
			continue
		}
		outcome, err := m.ingest(ctx, obj, activeProjects)
		if err != nil {
			log.WithError(err).Error("skipping object: registration failed")
			continue
		}
		if outcome == Created {
			log.Info("registered new interview file")
			registered = append(registered, obj.Key)
		}
	}
	return registered, nil
}

// candidate filters out objects that are not deliverables: anything outside a
// uuid-named instance directory, anything already registered, derived audio
// artifacts, and extensionless objects.
func (m *Monitor) candidate(key string, known map[string]bool) bool {
	folder, _, found := strings.Cut(key, "/")
	if !found {
		return false
	}
	if _, err := uuid.Parse(folder); err != nil {
		return false
	}
	if known[key] {
		return false
	}
	ext := strings.ToLower(path.Ext(key))
	if ext == "" || m.ignoreExtensions[ext] {
		return false
	}
	return true
}

func (m *Monitor) ingest(ctx context.Context, obj ObjectInfo, activeProjects []Project) (CreateOutcome, error) {
	parsed, err := ParsePath(obj.Key)
	if err != nil {
		return 0, err
	}
	head, err := m.objects.HeadObject(ctx, m.bucket, obj.Key)
	if err != nil {
		return 0, err
	}
	meta := MetadataFromTags(head.Metadata)
	resolution, err := m.resolver.Resolve(ctx, meta, activeProjects)
	if err != nil {
		return 0, err
	}
	return m.records.Register(ctx, FileRecord{
		Key:              obj.Key,
		OriginalFilename: parsed.Filename,
		OriginalPath:     obj.Key,
		SourceBucket:     m.bucket,
		InterviewID:      parsed.InterviewID,
		MediaType:        parsed.MediaType,
		ProjectAcronym:   resolution.ProjectAcronym,
		TargetBasename:   resolution.TargetBasename,
		ProcessingStatus: StatusNew,
		ContentType:      head.ContentType,
		Size:             head.Size,
		UploadedAt:       head.LastModified,
		Tags:             head.Metadata,
	})
}
