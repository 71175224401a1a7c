// Package awsx adapts the pipeline's storage and transcode interfaces to AWS.
package awsx

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/civichealth/interviewrelay/internal/interview"
)

type S3ObjectStore struct {
	client *s3.Client
}

func NewS3ObjectStore(client *s3.Client) *S3ObjectStore {
	return &S3ObjectStore{client: client}
}

func (s *S3ObjectStore) ListObjects(ctx context.Context, bucket string) ([]interview.ObjectInfo, error) {
	var out []interview.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			out = append(out, interview.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

func (s *S3ObjectStore) HeadObject(ctx context.Context, bucket, key string) (interview.ObjectHead, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return interview.ObjectHead{}, fmt.Errorf("%w: %s/%s", interview.ErrNotFound, bucket, key)
		}
		return interview.ObjectHead{}, fmt.Errorf("heading %s/%s: %w", bucket, key, err)
	}
	return interview.ObjectHead{
		ContentType:  aws.ToString(out.ContentType),
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

func (s *S3ObjectStore) DownloadObject(ctx context.Context, bucket, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return fmt.Errorf("%w: %s/%s", interview.ErrNotFound, bucket, key)
		}
		return fmt.Errorf("getting %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("streaming %s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeleteObjects issues one batch delete; keys that no longer exist are not an
// error, so a resumed archival pass converges.
func (s *S3ObjectStore) DeleteObjects(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	identifiers := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		identifiers = append(identifiers, s3types.ObjectIdentifier{Key: aws.String(key)})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &s3types.Delete{
			Objects: identifiers,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("deleting %d objects from %s: %w", len(keys), bucket, err)
	}
	var errs []error
	for _, failure := range out.Errors {
		errs = append(errs, fmt.Errorf("deleting %s/%s: %s", bucket, aws.ToString(failure.Key), aws.ToString(failure.Message)))
	}
	return errors.Join(errs...)
}
