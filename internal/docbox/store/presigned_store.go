package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/database"
)

// PresignedTaskStore persists PresignedUploadTask rows, grounded on
// presigned_upload_task.rs's create/set_status/find/find_expired/
// find_by_file_key/delete surface.
type PresignedTaskStore interface {
	Create(ctx context.Context, task *model.PresignedUploadTask) error
	Get(ctx context.Context, id uuid.UUID) (*model.PresignedUploadTask, error)
	FindByFileKey(ctx context.Context, fileKey string) (*model.PresignedUploadTask, error)
	SetStatus(ctx context.Context, id uuid.UUID, status model.PresignedStatus) error
	// FindExpired returns pending tasks whose expires_at is before now,
	// for the sweeper described in spec.md §4.4/§8 scenario 4.
	FindExpired(ctx context.Context, now time.Time) ([]model.PresignedUploadTask, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type presignedTaskStore struct {
	db *database.DB
}

// NewPresignedTaskStore builds a PresignedTaskStore over a tenant-scoped connection.
func NewPresignedTaskStore(db *database.DB) PresignedTaskStore {
	return &presignedTaskStore{db: db}
}

func (s *presignedTaskStore) Create(ctx context.Context, task *model.PresignedUploadTask) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create presigned task: %w", err)
	}
	return nil
}

func (s *presignedTaskStore) Get(ctx context.Context, id uuid.UUID) (*model.PresignedUploadTask, error) {
	var task model.PresignedUploadTask
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get presigned task: %w", err)
	}
	return &task, nil
}

func (s *presignedTaskStore) FindByFileKey(ctx context.Context, fileKey string) (*model.PresignedUploadTask, error) {
	var task model.PresignedUploadTask
	err := s.db.WithContext(ctx).Where("file_key = ?", fileKey).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find presigned task by file key: %w", err)
	}
	return &task, nil
}

func (s *presignedTaskStore) SetStatus(ctx context.Context, id uuid.UUID, status model.PresignedStatus) error {
	res := s.db.WithContext(ctx).Model(&model.PresignedUploadTask{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set presigned task status: %w", res.Error)
	}
	return nil
}

func (s *presignedTaskStore) FindExpired(ctx context.Context, now time.Time) ([]model.PresignedUploadTask, error) {
	var tasks []model.PresignedUploadTask
	// Pending is stored as JSON {"status":"pending"}; match the tag rather
	// than the whole payload since Completed/Failed carry extra fields.
	err := s.db.WithContext(ctx).
		Where("status->>'status' = ? AND expires_at < ?", string(model.PresignedPending), now).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("find expired presigned tasks: %w", err)
	}
	return tasks, nil
}

func (s *presignedTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&model.PresignedUploadTask{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete presigned task: %w", err)
	}
	return nil
}
