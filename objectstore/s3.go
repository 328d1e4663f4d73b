package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var _ Store = (*S3)(nil)

// S3Config configures an S3-compatible (also MinIO) object store backend.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3 implements Store against an S3-compatible bucket.
type S3 struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
}

// NewS3 creates a new S3 object store backend.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fatalErr(fmt.Errorf("objectstore: failed to load AWS config: %w", err))
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3{
		client:   s3Client,
		uploader: transfermanager.New(s3Client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3) key(objectPath string) string {
	return path.Join(s.prefix, objectPath)
}

func (s *S3) Get(ctx context.Context, objectPath string) (io.ReadCloser, bool, error) {
	return s.GetStream(ctx, objectPath, 0)
}

func (s *S3) GetStream(ctx context.Context, objectPath string, offset int64) (io.ReadCloser, bool, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(objectPath)),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	output, err := s.client.GetObject(ctx, input)
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, classify(err)
	}
	return output.Body, true, nil
}

func (s *S3) Put(ctx context.Context, objectPath string, r io.Reader, opts PutOptions) error {
	input := &transfermanager.UploadObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(s.key(objectPath)),
		Body:         r,
		CacheControl: aws.String(opts.CacheControl.Header()),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.GzipEncoded {
		input.ContentEncoding = aws.String("gzip")
	}

	if _, err := s.uploader.UploadObject(ctx, input); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps an AWS SDK error to the retryable/fatal taxonomy. Timeouts,
// throttling (429) and 5xx responses are retryable; everything else
// (permission/config/4xx-other-than-429) is treated as fatal, per spec's
// requirement that system/fatal errors not be silently converted to user
// errors or retried forever.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retryableErr(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestTimeout", "ThrottlingException", "SlowDown", "InternalError", "ServiceUnavailable":
			return retryableErr(err)
		}
	}

	var httpErr interface{ HTTPStatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.HTTPStatusCode()
		if code == 429 || code >= 500 {
			return retryableErr(err)
		}
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return retryableErr(err)
	}

	return fatalErr(err)
}
