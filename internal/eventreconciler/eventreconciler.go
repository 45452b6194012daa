// Package eventreconciler implements §4.6, the object event reconciler:
// polling a tenant's S3 event queue for ObjectCreated notifications and
// driving the matching PresignedUploadTask to completion, grounded on
// the aws-sdk-go-v2 client construction internal/objectstore already
// uses for S3, paired here with the sibling SQS client.
package eventreconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/conf"
	"github.com/docboxhq/docbox/internal/pkg/logger"
)

// TaskFinalizer is the subset of presigned.Coordinator the reconciler
// needs, kept as an interface so this package never imports
// internal/ingest's dependency chain directly.
type TaskFinalizer interface {
	HandleObjectEvent(ctx context.Context, tenantID uuid.UUID, fileKey string) error
}

// s3EventRecord mirrors the fields of an S3 ObjectCreated notification
// that reconciliation actually needs; the full AWS event envelope
// carries much more, but only bucket/key are consulted here.
type s3EventRecord struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

type s3EventBody struct {
	Records []s3EventRecord `json:"Records"`
}

// receiveMessage and deleteMessage are indirected through package
// variables, mirroring the aws-sdk-go-v2 call-swapping tests use
// elsewhere in the pack, so Run/handleMessage can be exercised without
// a live SQS queue.
var receiveMessage = func(ctx context.Context, client *sqs.Client, in *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
	return client.ReceiveMessage(ctx, in)
}

var deleteMessage = func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
	return client.DeleteMessage(ctx, in)
}

// Reconciler polls one tenant's SQS event queue.
type Reconciler struct {
	client   *sqs.Client
	queueURL string
	tenantID uuid.UUID
	finalize TaskFinalizer
	log      *logger.Logger
	cfg      conf.SQSConfig
}

// New builds a Reconciler bound to one tenant's queue URL, as resolved
// by internal/tenant.Registry.
func New(ctx context.Context, cfg conf.SQSConfig, s3Cfg conf.S3Config, queueURL string, tenantID uuid.UUID, finalize TaskFinalizer, log *logger.Logger) (*Reconciler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s3Cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3Cfg.AccessKeyID, s3Cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if s3Cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Cfg.Endpoint)
		}
	})

	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &Reconciler{
		client: client, queueURL: queueURL, tenantID: tenantID,
		finalize: finalize, log: log, cfg: cfg,
	}, nil
}

// Run polls until ctx is canceled. Each ReceiveMessage call long-polls
// for up to 20 seconds; PollInterval is the wait before the next receive
// after a ReceiveMessage call fails.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out, err := receiveMessage(ctx, r.client, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueURL),
			MaxNumberOfMessages: r.cfg.MaxMessages,
			VisibilityTimeout:   r.cfg.VisibilityTimeout,
			WaitTimeSeconds:     20,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameSentTimestamp,
			},
		})
		if err != nil {
			r.log.Warn("sqs receive failed", zap.String("queue_url", r.queueURL), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.PollInterval):
			}
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(ctx, msg)
		}

		if len(out.Messages) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.PollInterval):
			}
		}
	}
}

func (r *Reconciler) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		return
	}

	var body s3EventBody
	if err := json.Unmarshal([]byte(*msg.Body), &body); err != nil {
		r.log.Warn("failed to decode s3 event body", zap.Error(err))
		r.delete(ctx, msg)
		return
	}

	for _, record := range body.Records {
		key := record.S3.Object.Key
		if key == "" {
			continue
		}
		// Unknown keys (not under files/ or presigned/) are acknowledged
		// and dropped per spec.md §4.6.
		if err := r.finalize.HandleObjectEvent(ctx, r.tenantID, key); err != nil {
			r.log.Error("failed to finalize object event",
				zap.String("bucket", record.S3.Bucket.Name),
				zap.String("key", key),
				zap.Error(err),
			)
			// Leave the message unacknowledged; it becomes visible again
			// after VisibilityTimeout and is retried.
			return
		}
	}

	r.delete(ctx, msg)
}

func (r *Reconciler) delete(ctx context.Context, msg types.Message) {
	if msg.ReceiptHandle == nil {
		return
	}
	_, err := deleteMessage(ctx, r.client, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		r.log.Warn("failed to delete sqs message", zap.Error(err))
	}
}
