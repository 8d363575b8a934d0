package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/arkilian/ugcbench/internal/config"
	apperrors "github.com/arkilian/ugcbench/internal/errors"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = 100 * time.Millisecond
)

// S3 publishes reports to an S3-compatible bucket.
type S3 struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

// NewS3 builds a client from the default AWS credential chain. Endpoint and
// UsePathStyle support MinIO and LocalStack.
func NewS3(ctx context.Context, cfg config.S3Config) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewSinkError(apperrors.CodeUploadFailed, "failed to load AWS config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3WithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket), nil
}

// NewS3WithClient wraps a pre-configured client.
func NewS3WithClient(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket, maxRetries: defaultMaxRetries}
}

// Publish uploads localPath with PutObject, rewinding the file on retry.
func (s *S3) Publish(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
	}
	defer file.Close()

	return retry(ctx, s.maxRetries, defaultBackoff, func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
		}
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        file,
			ContentType: aws.String(contentType(key)),
		})
		if err != nil {
			return apperrors.NewSinkError(apperrors.CodeUploadFailed, key, err)
		}
		return nil
	})
}

// Fetch downloads key into localPath.
func (s *S3) Fetch(ctx context.Context, key, localPath string) error {
	var resp *s3.GetObjectOutput
	err := retry(ctx, s.maxRetries, defaultBackoff, func() error {
		var getErr error
		resp, getErr = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		var noSuchKey *s3types.NoSuchKey
		if errors.As(getErr, &noSuchKey) {
			return ErrObjectNotFound
		}
		if getErr != nil {
			return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, getErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
	}
	return nil
}

// Exists checks key with HeadObject.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := retry(ctx, s.maxRetries, defaultBackoff, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var notFound *s3types.NotFound
			if errors.As(err, &notFound) {
				exists = false
				return nil
			}
			return apperrors.NewSinkError(apperrors.CodeDownloadFailed, key, err)
		}
		exists = true
		return nil
	})
	return exists, err
}

// List pages through ListObjectsV2 under prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewSinkError(apperrors.CodeDownloadFailed, "list "+prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func contentType(key string) string {
	switch filepath.Ext(key) {
	case ".json":
		return "application/json"
	case ".prom":
		return "text/plain; version=0.0.4"
	default:
		return "application/octet-stream"
	}
}
