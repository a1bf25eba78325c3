package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// s3Store keeps objects in an S3 bucket.
type s3Store struct {
	client  *s3.Client
	bucket  string
	retries int
	backoff time.Duration
	log     zerolog.Logger
}

// NewS3 returns a Store backed by the named bucket. Credentials and
// region come from the standard AWS environment/config chain.
// Puts are retried up to retries times with linear backoff.
func NewS3(ctx context.Context, bucket string, retries int, backoff time.Duration, log zerolog.Logger) (Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objstore: s3 bucket not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if retries < 1 {
		retries = 1
	}
	return &s3Store{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  bucket,
		retries: retries,
		backoff: backoff,
		log:     log,
	}, nil
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 body for %s: %w", key, err)
	}
	return b, nil
}

// Put uploads to a temp key, server-side copies to the final key, then
// deletes the temp key. The copy is atomic from a reader's point of
// view; the temp key never collides across processes.
func (s *s3Store) Put(ctx context.Context, key string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp.%d.%d", key, os.Getpid(), time.Now().UnixMilli())

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		lastErr = s.putOnce(ctx, tmp, key, data)
		if lastErr == nil {
			return nil
		}
		s.log.Warn().Err(lastErr).Str("key", key).Int("attempt", attempt).Msg("s3 atomic put failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("s3 put %s after %d attempts: %w", key, s.retries, lastErr)
}

func (s *s3Store) putOnce(ctx context.Context, tmp, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(tmp),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading temp key: %w", err)
	}
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + tmp),
		Key:        aws.String(key),
	})
	if err != nil {
		s.cleanupTemp(ctx, tmp)
		return fmt.Errorf("copying temp to final key: %w", err)
	}
	s.cleanupTemp(ctx, tmp)
	return nil
}

// cleanupTemp is best-effort; an orphaned temp key is harmless.
func (s *s3Store) cleanupTemp(ctx context.Context, tmp string) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(tmp),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("key", tmp).Msg("failed to delete temp key")
	}
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return true, nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
