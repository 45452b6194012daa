// Package presigned implements C7: PresignedUploadTask lifecycle
// (Pending→Completed|Failed) and the expiry sweeper, grounded on
// presigned_upload_task.rs's find_expired/set_status surface and the
// gophkeeper presign-client pattern reused from internal/objectstore.
package presigned

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/docbox/store"
	"github.com/docboxhq/docbox/internal/ingest"
	"github.com/docboxhq/docbox/internal/objectstore"
	"github.com/docboxhq/docbox/internal/pkg/apperrors"
	"github.com/docboxhq/docbox/internal/pkg/logger"
)

// Finalizer is the subset of ingest.Coordinator this package depends
// on, kept as an interface so tests can substitute a fake instead of
// wiring a real database-backed Coordinator.
type Finalizer interface {
	Finalize(ctx context.Context, req ingest.FinalizeRequest) (*model.File, error)
}

// Coordinator manages the presigned-upload half of §4.4: creating a
// task and a presigned PUT URL, and finalizing or failing it once an
// object event arrives (driven by internal/eventreconciler).
type Coordinator struct {
	tasks   store.PresignedTaskStore
	objects objectstore.Adapter
	finish  Finalizer
	log     *logger.Logger
}

// New builds a presigned-upload Coordinator for one tenant handle.
func New(tasks store.PresignedTaskStore, objects objectstore.Adapter, finish Finalizer, log *logger.Logger) *Coordinator {
	return &Coordinator{tasks: tasks, objects: objects, finish: finish, log: log}
}

// CreateRequest describes a client's intent to upload via a presigned URL.
type CreateRequest struct {
	Name           string
	Mime           string
	Size           int64
	DocumentBox    string
	FolderID       uuid.UUID
	ParentID       *uuid.UUID
	CreatedBy      *string
	Expiry         time.Duration
	ProcessingConf model.JSONMap
}

// Create inserts a Pending task and returns it plus a presigned PUT URL
// keyed under the task's file_key.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (*model.PresignedUploadTask, string, error) {
	if req.Expiry <= 0 {
		req.Expiry = 15 * time.Minute
	}

	fileKey := fmt.Sprintf("presigned/%s", uuid.New())
	task := &model.PresignedUploadTask{
		ID:               uuid.New(),
		Status:           model.PendingStatus(),
		Name:             req.Name,
		Mime:             req.Mime,
		Size:             req.Size,
		DocumentBox:      req.DocumentBox,
		FolderID:         req.FolderID,
		ParentID:         req.ParentID,
		FileKey:          fileKey,
		CreatedAt:        time.Now().UTC(),
		ExpiresAt:        time.Now().UTC().Add(req.Expiry),
		CreatedBy:        req.CreatedBy,
		ProcessingConfig: req.ProcessingConf,
	}

	if err := c.tasks.Create(ctx, task); err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrStorageFailure, "create presigned task")
	}

	url, err := c.objects.PresignPut(ctx, fileKey, req.Mime)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrStorageFailure, "presign put url")
	}

	return task, url, nil
}

// HandleObjectEvent runs after internal/eventreconciler observes an
// ObjectCreated event whose key matches a pending task's file_key: it
// verifies the object exists, finalizes it through the same path as a
// direct upload, and transitions the task's status accordingly.
func (c *Coordinator) HandleObjectEvent(ctx context.Context, tenantID uuid.UUID, fileKey string) error {
	task, err := c.tasks.FindByFileKey(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("find presigned task by file key: %w", err)
	}
	if task == nil {
		// Unknown key: acknowledged and dropped per spec.md §4.6.
		return nil
	}
	if task.Status.Kind != model.PresignedPending {
		return nil
	}

	exists, err := c.objects.Exists(ctx, fileKey)
	if err != nil || !exists {
		return c.fail(ctx, task.ID, "uploaded object not found")
	}

	if task.IsExpired(time.Now().UTC()) {
		return c.fail(ctx, task.ID, "task expired before object arrived")
	}

	hash, err := c.hashObject(ctx, fileKey)
	if err != nil {
		return c.fail(ctx, task.ID, "uploaded object unreadable")
	}

	file, err := c.finish.Finalize(ctx, ingest.FinalizeRequest{
		TenantID:  tenantID,
		Name:      task.Name,
		Mime:      task.Mime,
		FolderID:  task.FolderID,
		ParentID:  task.ParentID,
		FileKey:   fileKey,
		Size:      task.Size,
		Hash:      hash,
		CreatedBy: task.CreatedBy,
	})
	if err != nil {
		return c.fail(ctx, task.ID, err.Error())
	}

	if err := c.tasks.SetStatus(ctx, task.ID, model.CompletedStatus(file.ID)); err != nil {
		return fmt.Errorf("mark presigned task completed: %w", err)
	}
	return nil
}

// hashObject reads the object already uploaded to fileKey back from the
// bucket and returns its SHA-256 digest, so a presigned upload's File
// row carries the same content-addressed Hash a direct upload computes
// in-stream.
func (c *Coordinator) hashObject(ctx context.Context, fileKey string) (string, error) {
	rc, err := c.objects.Get(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("read uploaded object: %w", err)
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hash uploaded object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Coordinator) fail(ctx context.Context, taskID uuid.UUID, reason string) error {
	if err := c.tasks.SetStatus(ctx, taskID, model.FailedStatus(reason)); err != nil {
		return fmt.Errorf("mark presigned task failed: %w", err)
	}
	return nil
}

// SweepExpired transitions every Pending task past its deadline to
// Failed and deletes any partially uploaded object, per spec.md §4.4's
// "tasks past expires_at ... are swept" rule. Intended to run on a
// ticker from cmd/server.
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	expired, err := c.tasks.FindExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("find expired presigned tasks: %w", err)
	}

	for _, task := range expired {
		if exists, _ := c.objects.Exists(ctx, task.FileKey); exists {
			if err := c.objects.Delete(ctx, task.FileKey); err != nil {
				c.log.Warn("failed to delete swept presigned object", zap.String("file_key", task.FileKey), zap.Error(err))
			}
		}
		if err := c.tasks.SetStatus(ctx, task.ID, model.FailedStatus("expired")); err != nil {
			c.log.Warn("failed to mark expired presigned task", zap.String("task_id", task.ID.String()), zap.Error(err))
		}
	}

	return len(expired), nil
}
