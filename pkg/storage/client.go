package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// Scheme prefixes input paths that live in S3.
const Scheme = "s3://"

// Client provides S3 storage operations
type Client struct {
	s3Client *s3.Client
}

// NewClient creates a new S3 client. Anonymous clients can read public
// buckets only; publishing needs the default credential chain.
func NewClient(ctx context.Context, region string, anonymous bool) (*Client, error) {
	slog.Info("s3_client_init", "region", region, "anonymous", anonymous)

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if anonymous {
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// IsURI reports whether path names an S3 object.
func IsURI(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseURI splits s3://bucket/key into its bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("s3 uri %q must name a bucket and an object key", uri)
	}
	return bucket, key, nil
}

// DownloadResult contains download metadata
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Download downloads an object from S3 and computes SHA256. Objects larger
// than maxSize are rejected before anything is written when S3 reports the
// length, and are cut off at maxSize+1 bytes otherwise. maxSize <= 0 means
// no limit.
func (c *Client) Download(ctx context.Context, bucket, key, localPath string, maxSize int64) (*DownloadResult, error) {
	slog.Info("s3_download_start", "bucket", bucket, "s3_key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return nil, errors.Input(Scheme+bucket+"/"+key, err)
	}
	defer result.Body.Close()

	uri := Scheme + bucket + "/" + key
	if err := checkContentLength(result.ContentLength, maxSize); err != nil {
		slog.Error("s3_object_too_large", "s3_key", key, "max_size", maxSize)
		return nil, errors.Input(uri, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		slog.Error("local_file_creation_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}
	defer f.Close()

	hash := sha256.New()
	writer := io.MultiWriter(f, hash)

	size, err := copyLimited(writer, result.Body, maxSize)
	if err != nil {
		slog.Error("s3_download_failed", "s3_key", key, "error", err)
		f.Close()
		os.Remove(localPath)
		return nil, errors.Input(uri, err)
	}

	checksum := hex.EncodeToString(hash.Sum(nil))

	// The signed_diff manifest embeds the target mtime; keep the object's.
	if result.LastModified != nil {
		if err := os.Chtimes(localPath, *result.LastModified, *result.LastModified); err != nil {
			slog.Warn("local_file_chtimes_failed", "path", localPath, "error", err)
		}
	}

	slog.Info("s3_download_complete",
		"s3_key", key,
		"size_bytes", size,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

func checkContentLength(length *int64, maxSize int64) error {
	if maxSize > 0 && length != nil && *length > maxSize {
		return fmt.Errorf("object size %d exceeds max %d", *length, maxSize)
	}
	return nil
}

// copyLimited copies at most maxSize+1 bytes and fails if the extra byte
// arrives.
func copyLimited(w io.Writer, r io.Reader, maxSize int64) (int64, error) {
	if maxSize <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, maxSize+1))
	if err != nil {
		return n, err
	}
	if n > maxSize {
		return n, fmt.Errorf("object exceeds max size %d", maxSize)
	}
	return n, nil
}

// Upload publishes a local file to S3
func (c *Client) Upload(ctx context.Context, bucket, key, localPath string) error {
	slog.Info("s3_upload_start", "bucket", bucket, "s3_key", key, "local_path", localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "failed to open artifact")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat artifact")
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("text/x-c"),
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return errors.Wrap(err, "failed to upload artifact")
	}

	slog.Info("s3_upload_complete", "bucket", bucket, "s3_key", key, "size_bytes", info.Size())
	return nil
}
