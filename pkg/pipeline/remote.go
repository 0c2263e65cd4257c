package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/security"
	"github.com/lorawan-fota/fragvec/pkg/storage"
)

// Remote resolves s3:// inputs and publishes finished artifacts.
type Remote struct {
	Client    *storage.Client
	Validator *security.Validator
	// WorkDir receives downloads under downloads/<bucket>/<key>.
	WorkDir string

	PublishBucket string
	PublishPrefix string
}

// NeedsClient reports whether job or the publish settings require S3.
func (r *Remote) NeedsClient(job Job) bool {
	if r.PublishBucket != "" {
		return true
	}
	for _, p := range []string{job.Source, job.Target, job.Payload} {
		if storage.IsURI(p) {
			return true
		}
	}
	return false
}

// Fetch returns a copy of job with every s3:// input replaced by a local
// download. Local paths pass through unchanged.
func (r *Remote) Fetch(ctx context.Context, job Job) (Job, error) {
	var err error
	if job.Source, err = r.fetchOne(ctx, job.Source); err != nil {
		return Job{}, err
	}
	if job.Target, err = r.fetchOne(ctx, job.Target); err != nil {
		return Job{}, err
	}
	if job.Payload, err = r.fetchOne(ctx, job.Payload); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (r *Remote) fetchOne(ctx context.Context, input string) (string, error) {
	if !storage.IsURI(input) {
		return input, nil
	}
	if r.Client == nil {
		return "", errors.Input(input, fmt.Errorf("no S3 client configured"))
	}

	bucket, key, err := storage.ParseURI(input)
	if err != nil {
		return "", errors.Input(input, err)
	}
	rel := filepath.Join(bucket, filepath.FromSlash(key))
	if r.Validator != nil {
		if err := r.Validator.ValidatePath(rel); err != nil {
			return "", errors.Input(input, err)
		}
	}

	local := filepath.Join(r.WorkDir, "downloads", rel)
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create download dir")
	}

	var maxSize int64
	if r.Validator != nil {
		maxSize = r.Validator.MaxImageSize()
	}
	res, err := r.Client.Download(ctx, bucket, key, local, maxSize)
	if err != nil {
		return "", err
	}
	return res.LocalPath, nil
}

// PublishKey is the object key the artifact at output is published under.
func (r *Remote) PublishKey(output string) string {
	return path.Join(r.PublishPrefix, filepath.Base(output))
}

// Publish uploads the artifact when a publish bucket is configured and
// returns its URI. It returns "" when publishing is disabled.
func (r *Remote) Publish(ctx context.Context, job Job) (string, error) {
	if r.PublishBucket == "" {
		return "", nil
	}
	if r.Client == nil {
		return "", errors.New("no S3 client configured for publishing")
	}

	key := r.PublishKey(job.Output)
	if err := r.Client.Upload(ctx, r.PublishBucket, key, job.Output); err != nil {
		return "", err
	}
	uri := storage.Scheme + r.PublishBucket + "/" + key
	slog.Info("artifact_published", "uri", uri)
	return uri, nil
}
