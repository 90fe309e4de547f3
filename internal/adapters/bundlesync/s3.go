package bundlesync

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/inboxforge/triage-engine/internal/bundle"
)

// S3Sync mirrors a published bundle from an S3 bucket into the local
// bundle directory, refetching an object only when its ETag moved.
// Files land via rename, so a watcher on the directory sees exactly
// one event per updated file. Not safe for concurrent use; the daemon
// drives it from a single loop.
type S3Sync struct {
	client *s3.Client
	bucket string
	prefix string
	dir    string
	logger *zap.Logger
	etags  map[string]string
}

// NewS3Sync creates a syncer for s3://bucket/prefix using the ambient
// AWS credential chain.
func NewS3Sync(ctx context.Context, bucket, prefix, dir string, logger *zap.Logger) (*S3Sync, error) {
	if bucket == "" {
		return nil, eris.New("bundlesync: bucket name is empty")
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "bundlesync: load aws configuration")
	}
	return &S3Sync{
		client: s3.NewFromConfig(sdkConfig),
		bucket: bucket,
		prefix: prefix,
		dir:    dir,
		logger: logger,
		etags:  make(map[string]string),
	}, nil
}

// Sync implements ports.BundleSyncer. The rules file must exist in the
// bucket; a missing model file removes the local copy so the engine
// degrades instead of serving a stale model.
func (s *S3Sync) Sync(ctx context.Context) (bool, error) {
	rulesChanged, err := s.syncObject(ctx, bundle.RulesFile, true)
	if err != nil {
		return false, err
	}
	modelChanged, err := s.syncObject(ctx, bundle.ModelFile, false)
	if err != nil {
		return rulesChanged, err
	}
	return rulesChanged || modelChanged, nil
}

func (s *S3Sync) syncObject(ctx context.Context, name string, required bool) (bool, error) {
	key := path.Join(s.prefix, name)
	attrs, err := s.client.GetObjectAttributes(ctx, &s3.GetObjectAttributesInput{
		Bucket:           aws.String(s.bucket),
		Key:              aws.String(key),
		ObjectAttributes: []types.ObjectAttributes{types.ObjectAttributesEtag},
	})
	if err != nil {
		if !isNotFound(err) {
			return false, eris.Wrapf(err, "bundlesync: read attributes of %s", key)
		}
		if required {
			return false, eris.Wrapf(err, "bundlesync: %s missing from bucket %s", key, s.bucket)
		}
		return s.removeLocal(name)
	}

	local := filepath.Join(s.dir, name)
	etag := aws.ToString(attrs.ETag)
	if etag != "" && etag == s.etags[name] {
		if _, err := os.Stat(local); err == nil {
			return false, nil
		}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, eris.Wrapf(err, "bundlesync: fetch %s", key)
	}
	defer result.Body.Close()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		return false, eris.Wrapf(err, "bundlesync: read %s", key)
	}

	if err := writeAtomic(local, data); err != nil {
		return false, err
	}
	s.etags[name] = etag
	s.logger.Info("Synced bundle object",
		zap.String("key", key),
		zap.Int("bytes", len(data)),
		zap.String("etag", etag))
	return true, nil
}

func (s *S3Sync) removeLocal(name string) (bool, error) {
	local := filepath.Join(s.dir, name)
	err := os.Remove(local)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "bundlesync: remove %s", local)
	}
	delete(s.etags, name)
	s.logger.Info("Removed local bundle object absent from bucket", zap.String("file", local))
	return true, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "bundlesync: create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "bundlesync: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "bundlesync: close temp file")
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "bundlesync: replace %s", dest)
	}
	return nil
}
