package localstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/civichealth/interviewrelay/internal/logger"
)

// Watch triggers onChange after filesystem activity in the bucket settles.
// Events are debounced because uploads arrive as bursts of writes; new
// subdirectories are added to the watch as they appear.
func (s *Store) Watch(ctx context.Context, bucket string, debounce time.Duration, log *logger.Logger, onChange func(context.Context)) error {
	if log == nil {
		log = logger.New()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	bucketDir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(bucketDir, 0o755); err != nil {
		return err
	}
	if err := watchRecursive(watcher, bucketDir); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchRecursive(watcher, event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).Warn("failed to watch new directory")
					}
				}
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				if pending && !timer.Stop() {
					<-timer.C
				}
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")
		case <-timer.C:
			pending = false
			onChange(ctx)
		}
	}
}

func watchRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}
