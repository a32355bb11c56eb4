package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	appconfig "marketlake/config"
	"marketlake/logger"
)

// S3Uploader mirrors written parquet objects to an S3 bucket. Uploads are
// rate limited so a large backfill cannot saturate the link.
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	prefix  string
	version string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewS3Uploader configures the AWS SDK the same way the rest of the system
// does: static credentials when provided, the default chain otherwise.
func NewS3Uploader(cfg *appconfig.Config) (*S3Uploader, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	perSecond := cfg.Storage.S3.UploadsPerSecond
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := cfg.Storage.S3.UploadBurst
	if burst <= 0 {
		burst = perSecond
	}

	uploader := &S3Uploader{
		client:  s3.NewFromConfig(awsConfig),
		bucket:  cfg.Storage.S3.Bucket,
		prefix:  cfg.Storage.S3.Prefix,
		version: cfg.Marketlake.Version,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		log:     log,
	}

	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket": uploader.bucket,
		"region": cfg.Storage.S3.Region,
		"prefix": uploader.prefix,
	}).Info("s3 uploader initialized")

	return uploader, nil
}

// Upload puts one object under the configured prefix. The key uses forward
// slashes regardless of platform.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	if err := u.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	fullKey := key
	if u.prefix != "" {
		fullKey = path.Join(u.prefix, key)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"marketlake-version": u.version,
		},
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", u.bucket, err)
	}

	u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"key":       fullKey,
		"data_size": len(data),
	}).Debug("object uploaded")
	return nil
}
