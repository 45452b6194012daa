package eventreconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

// fakeFinalizer records HandleObjectEvent calls and returns a canned error.
type fakeFinalizer struct {
	calls []string
	err   error
}

func (f *fakeFinalizer) HandleObjectEvent(ctx context.Context, tenantID uuid.UUID, fileKey string) error {
	f.calls = append(f.calls, fileKey)
	return f.err
}

func withStubbedDelete(t *testing.T, fn func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)) {
	t.Helper()
	orig := deleteMessage
	deleteMessage = fn
	t.Cleanup(func() { deleteMessage = orig })
}

func s3EventBodyJSON(bucket, key string) string {
	return `{"Records":[{"s3":{"bucket":{"name":"` + bucket + `"},"object":{"key":"` + key + `"}}}]}`
}

func TestHandleMessage_MalformedBodyIsDroppedAndDeleted(t *testing.T) {
	var deleted bool
	withStubbedDelete(t, func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
		deleted = true
		return &sqs.DeleteMessageOutput{}, nil
	})

	finalizer := &fakeFinalizer{}
	r := &Reconciler{tenantID: uuid.New(), finalize: finalizer, log: testLogger()}

	r.handleMessage(context.Background(), types.Message{
		Body:          aws.String("not json"),
		ReceiptHandle: aws.String("rh1"),
	})

	assert.True(t, deleted)
	assert.Empty(t, finalizer.calls)
}

func TestHandleMessage_EmptyKeyRecordIsSkipped(t *testing.T) {
	var deleted bool
	withStubbedDelete(t, func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
		deleted = true
		return &sqs.DeleteMessageOutput{}, nil
	})

	finalizer := &fakeFinalizer{}
	r := &Reconciler{tenantID: uuid.New(), finalize: finalizer, log: testLogger()}

	body := `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":""}}}]}`
	r.handleMessage(context.Background(), types.Message{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh2"),
	})

	assert.True(t, deleted)
	assert.Empty(t, finalizer.calls)
}

func TestHandleMessage_SuccessfulFinalizeDeletesMessage(t *testing.T) {
	var deleted bool
	withStubbedDelete(t, func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
		deleted = true
		assert.Equal(t, "rh3", *in.ReceiptHandle)
		return &sqs.DeleteMessageOutput{}, nil
	})

	tenantID := uuid.New()
	finalizer := &fakeFinalizer{}
	r := &Reconciler{tenantID: tenantID, finalize: finalizer, log: testLogger()}

	r.handleMessage(context.Background(), types.Message{
		Body:          aws.String(s3EventBodyJSON("docbox-bucket", "files/abc")),
		ReceiptHandle: aws.String("rh3"),
	})

	require.Len(t, finalizer.calls, 1)
	assert.Equal(t, "files/abc", finalizer.calls[0])
	assert.True(t, deleted)
}

// TestHandleMessage_FinalizeErrorLeavesMessageUnacknowledged guards the
// retry contract: a failure to finalize must not delete the message, so
// it becomes visible again after the queue's visibility timeout.
func TestHandleMessage_FinalizeErrorLeavesMessageUnacknowledged(t *testing.T) {
	var deleted bool
	withStubbedDelete(t, func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
		deleted = true
		return &sqs.DeleteMessageOutput{}, nil
	})

	finalizer := &fakeFinalizer{err: errors.New("db unavailable")}
	r := &Reconciler{tenantID: uuid.New(), finalize: finalizer, log: testLogger()}

	r.handleMessage(context.Background(), types.Message{
		Body:          aws.String(s3EventBodyJSON("docbox-bucket", "files/xyz")),
		ReceiptHandle: aws.String("rh4"),
	})

	require.Len(t, finalizer.calls, 1)
	assert.False(t, deleted)
}

func TestHandleMessage_NilBodyIsIgnored(t *testing.T) {
	var deleted bool
	withStubbedDelete(t, func(ctx context.Context, client *sqs.Client, in *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error) {
		deleted = true
		return &sqs.DeleteMessageOutput{}, nil
	})

	finalizer := &fakeFinalizer{}
	r := &Reconciler{tenantID: uuid.New(), finalize: finalizer, log: testLogger()}

	r.handleMessage(context.Background(), types.Message{})

	assert.False(t, deleted)
	assert.Empty(t, finalizer.calls)
}

func TestRun_StopsWhenContextCanceled(t *testing.T) {
	origReceive := receiveMessage
	t.Cleanup(func() { receiveMessage = origReceive })

	ctx, cancel := context.WithCancel(context.Background())
	receiveMessage = func(ctx context.Context, client *sqs.Client, in *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error) {
		cancel()
		return &sqs.ReceiveMessageOutput{}, nil
	}

	r := &Reconciler{tenantID: uuid.New(), finalize: &fakeFinalizer{}, log: testLogger()}
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
