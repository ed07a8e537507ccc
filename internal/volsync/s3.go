package volsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// ReplicaConfig describes the S3-compatible bucket holding the replica.
type ReplicaConfig struct {
	Bucket       string
	Key          string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// FlushMetrics counts failed flushes. Satisfied by observability.Metrics.
type FlushMetrics interface {
	RecordFlushFailure()
}

// S3Replica uploads the database file to an S3-compatible bucket after each
// committed mutation. Concurrent flush requests are coalesced so a burst of
// commits produces a single upload.
type S3Replica struct {
	client  *s3.Client
	cfg     ReplicaConfig
	path    string
	logger  *slog.Logger
	metrics FlushMetrics
	group   singleflight.Group

	// upload performs one flush attempt. Defaults to the S3 put.
	upload func(ctx context.Context) error
}

// NewS3Replica constructs the replica client.
func NewS3Replica(ctx context.Context, cfg ReplicaConfig, dbPath string, logger *slog.Logger) (*S3Replica, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("volsync: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})

	replica := &S3Replica{client: client, cfg: cfg, path: dbPath, logger: logger}
	replica.upload = replica.putObject
	return replica, nil
}

// SetMetrics attaches a failure counter. Optional.
func (r *S3Replica) SetMetrics(metrics FlushMetrics) {
	r.metrics = metrics
}

// Sync uploads the database file. Failures are retried with a short
// bounded backoff before the error is returned; the local commit that
// triggered the flush is never rolled back.
func (r *S3Replica) Sync(ctx context.Context) error {
	_, err, _ := r.group.Do("replica", func() (any, error) {
		backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
		return nil, retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := r.upload(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordFlushFailure()
		}
		return fmt.Errorf("volsync: replicate %s: %w", r.cfg.Bucket, err)
	}
	return nil
}

func (r *S3Replica) putObject(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.Bucket),
		Key:           aws.String(r.cfg.Key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	if err == nil && r.logger != nil {
		r.logger.Debug("replica flushed", slog.String("bucket", r.cfg.Bucket), slog.Int64("bytes", info.Size()))
	}
	return err
}

var _ Syncer = (*S3Replica)(nil)
