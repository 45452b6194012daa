package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PresignedStatusKind is the tagged discriminator of a PresignedUploadTask's
// status column, per SPEC_FULL.md Open Question decision 3.
type PresignedStatusKind string

const (
	PresignedPending   PresignedStatusKind = "pending"
	PresignedCompleted PresignedStatusKind = "completed"
	PresignedFailed    PresignedStatusKind = "failed"
)

// PresignedStatus is the Pending | Completed{file_id} | Failed{reason}
// tagged variant from spec.md §3, round-tripped through the status json
// column via Value/Scan.
type PresignedStatus struct {
	Kind   PresignedStatusKind `json:"status"`
	FileID *uuid.UUID          `json:"file_id,omitempty"`
	Reason string              `json:"error,omitempty"`
}

func PendingStatus() PresignedStatus {
	return PresignedStatus{Kind: PresignedPending}
}

func CompletedStatus(fileID uuid.UUID) PresignedStatus {
	return PresignedStatus{Kind: PresignedCompleted, FileID: &fileID}
}

func FailedStatus(reason string) PresignedStatus {
	return PresignedStatus{Kind: PresignedFailed, Reason: reason}
}

func (s PresignedStatus) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *PresignedStatus) Scan(src any) error {
	if src == nil {
		*s = PendingStatus()
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into PresignedStatus", src)
	}
	return json.Unmarshal(raw, s)
}

// PresignedUploadTask is a durable record of an upload the client intends
// to perform directly against the object store.
type PresignedUploadTask struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Status           PresignedStatus `gorm:"column:status;type:jsonb;not null" json:"status"`
	Name             string          `gorm:"not null" json:"name"`
	Mime             string          `gorm:"not null" json:"mime"`
	Size             int64           `gorm:"not null" json:"size"`
	DocumentBox      string          `gorm:"column:document_box;not null;index" json:"document_box"`
	FolderID         uuid.UUID       `gorm:"column:folder_id;not null" json:"folder_id"`
	ParentID         *uuid.UUID      `gorm:"column:parent_id" json:"parent_id,omitempty"`
	FileKey          string          `gorm:"column:file_key;not null;uniqueIndex" json:"-"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
	ExpiresAt        time.Time       `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedBy        *string         `gorm:"column:created_by" json:"created_by,omitempty"`
	ProcessingConfig JSONMap         `gorm:"column:processing_config;type:jsonb" json:"processing_config,omitempty"`
}

func (PresignedUploadTask) TableName() string { return "docbox_presigned_upload_tasks" }

// IsExpired reports whether the task's deadline has passed as of now.
func (t PresignedUploadTask) IsExpired(now time.Time) bool {
	return t.Status.Kind == PresignedPending && now.After(t.ExpiresAt)
}
