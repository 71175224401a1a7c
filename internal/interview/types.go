package interview

import (
	"context"
	"io"
	"strings"
	"time"
)

// ProcessingStatus is the lifecycle state of an interview file. Transitions
// are forward-only and never skip a state; archival removes the record from
// the status store entirely.
type ProcessingStatus string

const (
	StatusNew                 ProcessingStatus = "new"
	StatusExtractionSubmitted ProcessingStatus = "audio extraction job submitted"
	StatusProcessed           ProcessingStatus = "processed"
)

func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case StatusNew:
		return next == StatusExtractionSubmitted
	case StatusExtractionSubmitted:
		return next == StatusProcessed
	default:
		return false
	}
}

// TaskStatus flags whether a project is currently conducting interviews.
type TaskStatus string

const (
	TaskActive   TaskStatus = "active"
	TaskInactive TaskStatus = "inactive"
)

type Interviewer struct {
	Initials string `json:"initials"`
	FullName string `json:"full_name"`
}

// Project is the research-project metadata record owned by the projects
// store; the pipeline treats it as read-only.
type Project struct {
	Acronym               string                 `json:"id"`
	ProjectID             string                 `json:"project_id"`
	FilenamePrefix        string                 `json:"filename_prefix"`
	InterviewTaskStatus   TaskStatus             `json:"interview_task_status"`
	Interviewers          map[string]Interviewer `json:"interviewers"`
	OnDemandReferrer      string                 `json:"on_demand_referrer,omitempty"`
	AppointmentTypeIDs    []string               `json:"appointment_type_ids,omitempty"`
	ParticipantDataToSDHS bool                   `json:"participant_data_to_sdhs"`
}

func (p Project) Active() bool {
	return p.InterviewTaskStatus == TaskActive
}

// FileMetadata is the uploader-supplied tag set attached to an incoming
// object. Live interviews carry an interviewer name; on-demand interviews a
// referrer URL and question index.
type FileMetadata struct {
	Email         string
	Interviewer   string
	Referrer      string
	QuestionIndex string
}

const (
	metadataKeyEmail         = "email"
	metadataKeyInterviewer   = "interviewer"
	metadataKeyReferrer      = "referrer"
	metadataKeyQuestionIndex = "question_index"
)

// MetadataFromTags extracts the recognised tags from an object head's
// user-metadata map. Keys are matched case-insensitively because upload
// clients do not agree on casing.
func MetadataFromTags(tags map[string]string) FileMetadata {
	var m FileMetadata
	for k, v := range tags {
		switch strings.ToLower(k) {
		case metadataKeyEmail:
			m.Email = v
		case metadataKeyInterviewer:
			m.Interviewer = v
		case metadataKeyReferrer:
			m.Referrer = v
		case metadataKeyQuestionIndex:
			m.QuestionIndex = v
		}
	}
	return m
}

func (m FileMetadata) OnDemand() bool {
	return m.Referrer != ""
}

// FileRecord is the per-file tracking entity. Key is the original object key;
// TargetBasename is assigned exactly once at creation.
type FileRecord struct {
	Key                     string            `json:"id"`
	OriginalFilename        string            `json:"original_filename"`
	OriginalPath            string            `json:"original_path"`
	SourceBucket            string            `json:"source_bucket"`
	InterviewID             string            `json:"interview_id"`
	MediaType               string            `json:"media_type"`
	ProjectAcronym          string            `json:"project_acronym"`
	TargetBasename          string            `json:"target_basename"`
	AudioExtractionAttempts int               `json:"audio_extraction_attempts"`
	SDHSTransferAttempts    int               `json:"sdhs_transfer_attempts"`
	ProcessingStatus        ProcessingStatus  `json:"processing_status"`
	ContentType             string            `json:"content_type,omitempty"`
	Size                    int64             `json:"size"`
	UploadedAt              time.Time         `json:"uploaded_to_s3"`
	Tags                    map[string]string `json:"tags,omitempty"`
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type ObjectHead struct {
	ContentType  string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectStore is the durable object storage the pipeline reads from and
// cleans up. Implementations: S3 (awsx) and a local filesystem store
// (localstore) for development and tests.
type ObjectStore interface {
	ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error)
	HeadObject(ctx context.Context, bucket, key string) (ObjectHead, error)
	DownloadObject(ctx context.Context, bucket, key string, w io.Writer) error
	DeleteObjects(ctx context.Context, bucket string, keys []string) error
}

// CreateOutcome tags the result of a conditional create so the benign
// duplicate path is visible in the type system rather than hidden behind a
// caught error.
type CreateOutcome int

const (
	Created CreateOutcome = iota
	AlreadyExists
)

// RecordUpdate is the typed field-update set accepted by the status store.
// Zero-valued fields are left untouched.
type RecordUpdate struct {
	Status                  ProcessingStatus
	AudioExtractionAttempts *int
	SDHSTransferAttempts    *int
}

// StatusStore is the durable key-value status table. Create is conditional:
// a key that already exists fails with ErrDuplicateKey, never a silent
// overwrite. RecordManager.Register translates that into the tagged
// AlreadyExists outcome for callers to whom the duplicate is benign.
type StatusStore interface {
	Create(ctx context.Context, rec FileRecord) error
	Get(ctx context.Context, key string) (FileRecord, error)
	Update(ctx context.Context, key string, update RecordUpdate) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, statuses ...ProcessingStatus) ([]FileRecord, error)
}

// AuditStore receives archived records. Archive is a conditional write:
// re-archiving an already archived record fails with ErrDuplicateArchive.
type AuditStore interface {
	Archive(ctx context.Context, rec FileRecord) error
}

// ProjectStore supplies project metadata. ActiveProjects is fetched once per
// stage run and treated as read-only for the run's duration.
type ProjectStore interface {
	ActiveProjects(ctx context.Context) ([]Project, error)
}

type UserProject struct {
	ProjectID                 string `json:"project_id"`
	AnonProjectSpecificUserID string `json:"anon_project_specific_user_id"`
}

type ProjectUser struct {
	UserID                    string `json:"user_id"`
	AnonProjectSpecificUserID string `json:"anon_project_specific_user_id"`
	Email                     string `json:"email"`
	FirstName                 string `json:"first_name"`
	LastName                  string `json:"last_name"`
}

// IdentityService resolves participant identities. UserIDByEmail returns
// ErrUnknownUser when no account matches.
type IdentityService interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
	UserProjects(ctx context.Context, userID string) ([]UserProject, error)
	UsersByProject(ctx context.Context, projectID string) ([]ProjectUser, error)
}

type Appointment struct {
	ParticipantEmail          string    `json:"participant_email"`
	AnonProjectSpecificUserID string    `json:"anon_project_specific_user_id"`
	AppointmentTypeID         string    `json:"appointment_type_id"`
	AppointmentType           string    `json:"appointment_type"`
	Time                      time.Time `json:"datetime"`
}

type SchedulingService interface {
	AppointmentsByTypeIDs(ctx context.Context, typeIDs []string) ([]Appointment, error)
}

type TranscodeService interface {
	SubmitAudioExtraction(ctx context.Context, sourceBucket, sourceKey string) (jobID string, err error)
}

// Destination holds the remote transfer parameters for one project.
type Destination struct {
	Host        string
	Port        int
	Username    string
	Password    string
	HostKeyType string
	HostKey     string
	Folder      string
}

// DestinationResolver maps a project acronym to its transfer destination;
// ErrUnknownProjectConfig when none is configured.
type DestinationResolver interface {
	Destination(projectAcronym string) (Destination, error)
}

// RemoteSession is one scoped connection to the remote destination system.
type RemoteSession interface {
	MkdirAll(path string) error
	// Stat reports the size of the remote file, or exists=false.
	Stat(path string) (size int64, exists bool, err error)
	Create(path string) (io.WriteCloser, error)
	Close() error
}

type RemoteDialer interface {
	Dial(ctx context.Context, dest Destination) (RemoteSession, error)
}
