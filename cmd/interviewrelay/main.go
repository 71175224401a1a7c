package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"github.com/civichealth/interviewrelay/internal/awsx"
	"github.com/civichealth/interviewrelay/internal/identity"
	"github.com/civichealth/interviewrelay/internal/interview"
	"github.com/civichealth/interviewrelay/internal/localstore"
	"github.com/civichealth/interviewrelay/internal/logger"
	"github.com/civichealth/interviewrelay/internal/pgstore"
	"github.com/civichealth/interviewrelay/internal/scheduling"
	"github.com/civichealth/interviewrelay/internal/sdhs"
)

const usage = `usage: interviewrelay <command> [args]

commands:
  monitor        ingest new files from the incoming bucket
  dispatch       submit audio extraction jobs for new records
  transfer       push completed audio artifacts to project destinations
  clean          archive processed records past the retention window
  roster         export participant rosters to project destinations
  watch          run monitor+dispatch whenever the local store changes
  list-incoming  print the incoming bucket contents
  head <key>     print one incoming object's metadata`

func main() {
	_ = godotenv.Load()
	log := logger.New()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]
	ctx := context.Background()

	app, err := newApp(ctx, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}

	switch command {
	case "monitor":
		err = app.runMonitor(ctx)
	case "dispatch":
		err = app.runDispatch(ctx)
	case "transfer":
		err = app.runTransfer(ctx, args)
	case "clean":
		err = app.runClean(ctx)
	case "roster":
		err = app.runRoster(ctx)
	case "watch":
		err = app.runWatch(ctx)
	case "list-incoming":
		err = app.runListIncoming(ctx)
	case "head":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		err = app.runHead(ctx, args[0])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).WithField("command", command).Fatal("command failed")
	}
}

type app struct {
	log *logger.Logger

	incomingBucket string
	audioBucket    string
	retention      time.Duration

	objects    interview.ObjectStore
	local      *localstore.Store
	records    *interview.RecordManager
	audit      interview.AuditStore
	projects   interview.ProjectStore
	identity   interview.IdentityService
	resolver   *interview.Resolver
	transcode  interview.TranscodeService
	scheduling interview.SchedulingService
	dialer     interview.RemoteDialer

	awsOnce sync.Once
	awsErr  error
	awsCfg  awsConfigBundle

	destOnce     sync.Once
	destErr      error
	destinations interview.DestinationResolver
}

type awsConfigBundle struct {
	s3      *s3.Client
	dynamo  *dynamodb.Client
	mc      *mediaconvert.Client
	secrets *secretsmanager.Client
}

func newApp(ctx context.Context, log *logger.Logger) (*app, error) {
	a := &app{
		log:            log,
		incomingBucket: envOr("INTERVIEWRELAY_INCOMING_BUCKET", "interview-incoming"),
		audioBucket:    envOr("INTERVIEWRELAY_AUDIO_BUCKET", "interview-audio"),
		retention:      durationEnv("INTERVIEWRELAY_RETENTION", interview.DefaultRetentionWindow),
	}

	if err := a.buildObjectStore(ctx); err != nil {
		return nil, err
	}
	if err := a.buildStatusStores(ctx); err != nil {
		return nil, err
	}
	if err := a.buildProjectStore(ctx); err != nil {
		return nil, err
	}

	a.identity = identity.NewClient(os.Getenv("INTERVIEWRELAY_IDENTITY_URL"), os.Getenv("INTERVIEWRELAY_IDENTITY_API_KEY"), nil)
	if url := strings.TrimSpace(os.Getenv("INTERVIEWRELAY_SCHEDULING_URL")); url != "" {
		a.scheduling = scheduling.NewClient(url, os.Getenv("INTERVIEWRELAY_SCHEDULING_API_KEY"), nil)
	}
	a.resolver = interview.NewResolver(a.identity, a.scheduling, log)

	mcClient, err := a.mediaConvertClient(ctx)
	if err != nil {
		return nil, err
	}
	a.transcode = mcClient
	a.dialer = sdhs.NewDialer(durationEnv("INTERVIEWRELAY_SFTP_TIMEOUT", 30*time.Second))
	return a, nil
}

func (a *app) buildObjectStore(ctx context.Context) error {
	dsn := envOr("INTERVIEWRELAY_OBJECT_STORE_DSN", "s3://")
	switch {
	case dsn == "s3://" || dsn == "s3":
		cfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		a.objects = awsx.NewS3ObjectStore(cfg.s3)
		return nil
	case strings.HasPrefix(dsn, "file://"):
		store, err := localstore.New(strings.TrimPrefix(dsn, "file://"))
		if err != nil {
			return err
		}
		a.local = store
		a.objects = store
		return nil
	default:
		return fmt.Errorf("unsupported INTERVIEWRELAY_OBJECT_STORE_DSN %q", dsn)
	}
}

func (a *app) buildStatusStores(ctx context.Context) error {
	statusDSN := envOr("INTERVIEWRELAY_STATUS_DSN", "memory://")
	auditDSN := envOr("INTERVIEWRELAY_AUDIT_DSN", "memory://")

	var status interview.StatusStore
	switch {
	case statusDSN == "memory://":
		status = interview.NewMemoryStatusStore()
	case strings.HasPrefix(statusDSN, "postgres://"):
		store, err := pgstore.NewStatusStore(statusDSN)
		if err != nil {
			return err
		}
		status = store
	case strings.HasPrefix(statusDSN, "dynamodb://"):
		cfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		status = awsx.NewDynamoStatusStore(cfg.dynamo, strings.TrimPrefix(statusDSN, "dynamodb://"))
	default:
		return fmt.Errorf("unsupported INTERVIEWRELAY_STATUS_DSN %q", statusDSN)
	}
	a.records = interview.NewRecordManager(status, a.log)

	switch {
	case auditDSN == "memory://":
		a.audit = interview.NewMemoryAuditStore()
	case strings.HasPrefix(auditDSN, "postgres://"):
		store, err := pgstore.NewAuditStore(auditDSN)
		if err != nil {
			return err
		}
		a.audit = store
	case strings.HasPrefix(auditDSN, "dynamodb://"):
		cfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		a.audit = awsx.NewDynamoAuditStore(cfg.dynamo, strings.TrimPrefix(auditDSN, "dynamodb://"))
	default:
		return fmt.Errorf("unsupported INTERVIEWRELAY_AUDIT_DSN %q", auditDSN)
	}
	return nil
}

func (a *app) buildProjectStore(ctx context.Context) error {
	dsn := envOr("INTERVIEWRELAY_PROJECTS_DSN", "file://projects.json")
	switch {
	case strings.HasPrefix(dsn, "file://"):
		store, err := localstore.LoadProjects(strings.TrimPrefix(dsn, "file://"))
		if err != nil {
			return err
		}
		a.projects = store
		return nil
	case strings.HasPrefix(dsn, "dynamodb://"):
		cfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		a.projects = awsx.NewDynamoProjectStore(cfg.dynamo, strings.TrimPrefix(dsn, "dynamodb://"))
		return nil
	default:
		return fmt.Errorf("unsupported INTERVIEWRELAY_PROJECTS_DSN %q", dsn)
	}
}

func (a *app) mediaConvertClient(ctx context.Context) (interview.TranscodeService, error) {
	cfg, err := a.aws(ctx)
	if err != nil {
		return nil, err
	}
	return awsx.NewMediaConvertService(cfg.mc, awsx.MediaConvertConfig{
		Queue:       os.Getenv("INTERVIEWRELAY_MEDIACONVERT_QUEUE"),
		Role:        os.Getenv("INTERVIEWRELAY_MEDIACONVERT_ROLE"),
		AudioBucket: a.audioBucket,
	}), nil
}

func (a *app) aws(ctx context.Context) (awsConfigBundle, error) {
	a.awsOnce.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			a.awsErr = err
			return
		}
		a.awsCfg = awsConfigBundle{
			s3:      s3.NewFromConfig(cfg),
			dynamo:  dynamodb.NewFromConfig(cfg),
			mc:      mediaconvert.NewFromConfig(cfg),
			secrets: secretsmanager.NewFromConfig(cfg),
		}
	})
	return a.awsCfg, a.awsErr
}

// destinationResolver loads the SDHS connection document on first use, from a
// local file in development or Secrets Manager in production.
func (a *app) destinationResolver(ctx context.Context) (interview.DestinationResolver, error) {
	a.destOnce.Do(func() {
		var raw []byte
		if file := strings.TrimSpace(os.Getenv("INTERVIEWRELAY_SDHS_CONFIG_FILE")); file != "" {
			var err error
			raw, err = os.ReadFile(file)
			if err != nil {
				a.destErr = err
				return
			}
		} else {
			cfg, err := a.aws(ctx)
			if err != nil {
				a.destErr = err
				return
			}
			raw, err = awsx.FetchSecret(ctx, cfg.secrets, envOr("INTERVIEWRELAY_SDHS_SECRET_ID", "sdhs/connection"))
			if err != nil {
				a.destErr = err
				return
			}
		}
		a.destinations, a.destErr = sdhs.ParseConfig(raw)
	})
	return a.destinations, a.destErr
}

func (a *app) runMonitor(ctx context.Context) error {
	monitor := interview.NewMonitor(a.objects, a.records, a.projects, a.resolver, interview.MonitorConfig{
		Bucket: a.incomingBucket,
	}, a.log)
	registered, err := monitor.Run(ctx)
	if err != nil {
		return err
	}
	a.log.WithField("registered", len(registered)).Info("monitor pass complete")
	return nil
}

func (a *app) runDispatch(ctx context.Context) error {
	dispatcher := interview.NewDispatcher(a.records, a.transcode, a.log)
	submitted, err := dispatcher.Run(ctx)
	if err != nil {
		return err
	}
	a.log.WithField("submitted", submitted).Info("dispatch pass complete")
	return nil
}

// runTransfer handles the artifact keys given as arguments, or every audio
// artifact currently in the audio bucket when called without any.
func (a *app) runTransfer(ctx context.Context, artifactKeys []string) error {
	destinations, err := a.destinationResolver(ctx)
	if err != nil {
		return err
	}
	manager := interview.NewTransferManager(a.records, a.objects, destinations, a.dialer, a.log)

	if len(artifactKeys) == 0 {
		objects, err := a.objects.ListObjects(ctx, a.audioBucket)
		if err != nil {
			return err
		}
		for _, obj := range objects {
			if path.Ext(obj.Key) == ".mp3" {
				artifactKeys = append(artifactKeys, obj.Key)
			}
		}
	}
	for _, key := range artifactKeys {
		if err := manager.HandleCompletedArtifact(ctx, a.audioBucket, key); err != nil {
			a.log.WithError(err).WithField("artifact", key).Error("transfer failed; artifact left for next run")
		}
	}
	return nil
}

func (a *app) runClean(ctx context.Context) error {
	cleaner := interview.NewCleaner(a.records, a.audit, a.objects, interview.CleanerConfig{
		IncomingBucket: a.incomingBucket,
		AudioBucket:    a.audioBucket,
		Retention:      a.retention,
	}, a.log)
	archived, err := cleaner.Run(ctx)
	if err != nil {
		return err
	}
	a.log.WithField("archived", archived).Info("clean pass complete")
	return nil
}

func (a *app) runRoster(ctx context.Context) error {
	destinations, err := a.destinationResolver(ctx)
	if err != nil {
		return err
	}
	exporter := interview.NewRosterExporter(a.projects, a.identity, a.scheduling, destinations, a.dialer, interview.RosterConfig{}, a.log)
	exported, err := exporter.Run(ctx)
	if err != nil {
		return err
	}
	a.log.WithField("exported", exported).Info("roster pass complete")
	return nil
}

func (a *app) runWatch(ctx context.Context) error {
	if a.local == nil {
		return fmt.Errorf("watch requires a file:// object store")
	}
	debounce := durationEnv("INTERVIEWRELAY_WATCH_DEBOUNCE", 2*time.Second)
	a.log.WithField("bucket", a.incomingBucket).Info("watching for uploads")
	return a.local.Watch(ctx, a.incomingBucket, debounce, a.log, func(ctx context.Context) {
		if err := a.runMonitor(ctx); err != nil {
			a.log.WithError(err).Error("monitor pass failed")
			return
		}
		if err := a.runDispatch(ctx); err != nil {
			a.log.WithError(err).Error("dispatch pass failed")
		}
	})
}

func (a *app) runListIncoming(ctx context.Context) error {
	objects, err := a.objects.ListObjects(ctx, a.incomingBucket)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		fmt.Printf("%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.Format(time.RFC3339))
	}
	return nil
}

func (a *app) runHead(ctx context.Context, key string) error {
	head, err := a.objects.HeadObject(ctx, a.incomingBucket, key)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(struct {
		ContentType  string            `json:"content_type,omitempty"`
		Size         int64             `json:"size"`
		LastModified time.Time         `json:"last_modified"`
		Metadata     map[string]string `json:"metadata,omitempty"`
	}{head.ContentType, head.Size, head.LastModified, head.Metadata}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
