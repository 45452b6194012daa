package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/database"
)

// LinkStore persists Link rows for one tenant database.
type LinkStore interface {
	Create(ctx context.Context, link *model.Link) error
	Get(ctx context.Context, id uuid.UUID) (*model.Link, error)
	ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.Link, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	UpdateValue(ctx context.Context, id uuid.UUID, value string) error
	MoveToFolder(ctx context.Context, id uuid.UUID, newFolder uuid.UUID) error
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type linkStore struct {
	db *database.DB
}

// NewLinkStore builds a LinkStore over a tenant-scoped connection.
func NewLinkStore(db *database.DB) LinkStore {
	return &linkStore{db: db}
}

func (s *linkStore) Create(ctx context.Context, link *model.Link) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func (s *linkStore) Get(ctx context.Context, id uuid.UUID) (*model.Link, error) {
	var link model.Link
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get link: %w", err)
	}
	return &link, nil
}

func (s *linkStore) ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.Link, error) {
	var links []model.Link
	if err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list links by folder: %w", err)
	}
	return links, nil
}

func (s *linkStore) Rename(ctx context.Context, id uuid.UUID, name string) error {
	if err := s.db.WithContext(ctx).Model(&model.Link{}).Where("id = ?", id).Update("name", name).Error; err != nil {
		return fmt.Errorf("rename link: %w", err)
	}
	return nil
}

func (s *linkStore) UpdateValue(ctx context.Context, id uuid.UUID, value string) error {
	if err := s.db.WithContext(ctx).Model(&model.Link{}).Where("id = ?", id).Update("value", value).Error; err != nil {
		return fmt.Errorf("update link value: %w", err)
	}
	return nil
}

func (s *linkStore) MoveToFolder(ctx context.Context, id uuid.UUID, newFolder uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&model.Link{}).Where("id = ?", id).Update("folder_id", newFolder).Error; err != nil {
		return fmt.Errorf("move link: %w", err)
	}
	return nil
}

func (s *linkStore) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	if err := s.db.WithContext(ctx).Model(&model.Link{}).Where("id = ?", id).Update("pinned", pinned).Error; err != nil {
		return fmt.Errorf("set link pinned: %w", err)
	}
	return nil
}

func (s *linkStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&model.Link{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}
