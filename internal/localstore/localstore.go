// Package localstore is a filesystem-backed object store used for local
// development and tests. Buckets are directories under the root; object
// metadata lives in a .meta.json sidecar next to each object.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/civichealth/interviewrelay/internal/interview"
)

const metaSuffix = ".meta.json"

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, interview.ErrInvalidInput
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Store) objectPath(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

func (s *Store) ListObjects(ctx context.Context, bucket string) ([]interview.ObjectInfo, error) {
	bucketDir := filepath.Join(s.root, bucket)
	var out []interview.ObjectInfo
	err := filepath.WalkDir(bucketDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == bucketDir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(bucketDir, p)
		if err != nil {
			return err
		}
		out = append(out, interview.ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing bucket %s: %w", bucket, err)
	}
	return out, nil
}

func (s *Store) HeadObject(ctx context.Context, bucket, key string) (interview.ObjectHead, error) {
	p := s.objectPath(bucket, key)
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return interview.ObjectHead{}, fmt.Errorf("%w: %s/%s", interview.ErrNotFound, bucket, key)
		}
		return interview.ObjectHead{}, err
	}
	head := interview.ObjectHead{
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}
	raw, err := os.ReadFile(p + metaSuffix)
	if err == nil {
		var meta sidecar
		if err := json.Unmarshal(raw, &meta); err != nil {
			return interview.ObjectHead{}, fmt.Errorf("parsing sidecar for %s/%s: %w", bucket, key, err)
		}
		head.ContentType = meta.ContentType
		head.Metadata = meta.Metadata
	} else if !os.IsNotExist(err) {
		return interview.ObjectHead{}, err
	}
	return head, nil
}

func (s *Store) DownloadObject(ctx context.Context, bucket, key string, w io.Writer) error {
	f, err := os.Open(s.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s/%s", interview.ErrNotFound, bucket, key)
		}
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (s *Store) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	for _, key := range keys {
		p := s.objectPath(bucket, key)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
		}
		if err := os.Remove(p + metaSuffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting sidecar of %s/%s: %w", bucket, key, err)
		}
	}
	return nil
}

// PutObject writes an object and its metadata sidecar; test and seed tooling
// use it to mimic uploads.
func (s *Store) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	p := s.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return err
	}
	if contentType == "" && len(metadata) == 0 {
		return nil
	}
	raw, err := json.Marshal(sidecar{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return err
	}
	return os.WriteFile(p+metaSuffix, raw, 0o644)
}
