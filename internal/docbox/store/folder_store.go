// Package store implements the Postgres-backed repositories for every
// entity in internal/docbox/model, following the interface-then-GORM-impl
// shape of the teacher's knowledge repositories: one interface per
// aggregate, one struct wrapping *database.DB, plain error wrapping (no
// framework-level query builder abstraction beyond GORM itself).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/apperrors"
	"github.com/docboxhq/docbox/internal/pkg/database"
)

// FolderStore persists Folder rows for one tenant database.
type FolderStore interface {
	Create(ctx context.Context, folder *model.Folder) error
	Get(ctx context.Context, id uuid.UUID) (*model.Folder, error)
	GetRoot(ctx context.Context, documentBox string) (*model.Folder, error)
	Children(ctx context.Context, folderID uuid.UUID) ([]model.Folder, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	MoveToFolder(ctx context.Context, id uuid.UUID, newParent uuid.UUID) error
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountFiles(ctx context.Context, folderID uuid.UUID) (int, error)
	CountLinks(ctx context.Context, folderID uuid.UUID) (int, error)
}

type folderStore struct {
	db *database.DB
}

// NewFolderStore builds a FolderStore over a tenant-scoped connection.
func NewFolderStore(db *database.DB) FolderStore {
	return &folderStore{db: db}
}

func (s *folderStore) Create(ctx context.Context, folder *model.Folder) error {
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

func (s *folderStore) Get(ctx context.Context, id uuid.UUID) (*model.Folder, error) {
	var folder model.Folder
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &folder, nil
}

func (s *folderStore) GetRoot(ctx context.Context, documentBox string) (*model.Folder, error) {
	var folder model.Folder
	err := s.db.WithContext(ctx).
		Where("document_box = ? AND folder_id IS NULL", documentBox).
		First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get root folder: %w", err)
	}
	return &folder, nil
}

func (s *folderStore) Children(ctx context.Context, folderID uuid.UUID) ([]model.Folder, error) {
	var children []model.Folder
	if err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&children).Error; err != nil {
		return nil, fmt.Errorf("list child folders: %w", err)
	}
	return children, nil
}

func (s *folderStore) Rename(ctx context.Context, id uuid.UUID, name string) error {
	res := s.db.WithContext(ctx).Model(&model.Folder{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("rename folder: %w", res.Error)
	}
	return nil
}

func (s *folderStore) MoveToFolder(ctx context.Context, id uuid.UUID, newParent uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&model.Folder{}).Where("id = ?", id).Update("folder_id", newParent)
	if res.Error != nil {
		return fmt.Errorf("move folder: %w", res.Error)
	}
	return nil
}

func (s *folderStore) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	res := s.db.WithContext(ctx).Model(&model.Folder{}).Where("id = ?", id).Update("pinned", pinned)
	if res.Error != nil {
		return fmt.Errorf("set folder pinned: %w", res.Error)
	}
	return nil
}

// Delete removes a folder, restricted to childless folders per spec.md
// §3 ("restricted (no orphan files)"): any file, link, or sub-folder
// still pointing at id blocks the delete with a conflict.
func (s *folderStore) Delete(ctx context.Context, id uuid.UUID) error {
	fileCount, err := s.CountFiles(ctx, id)
	if err != nil {
		return err
	}
	if fileCount > 0 {
		return apperrors.NewConflict("folder has files")
	}
	linkCount, err := s.CountLinks(ctx, id)
	if err != nil {
		return err
	}
	if linkCount > 0 {
		return apperrors.NewConflict("folder has links")
	}
	children, err := s.Children(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return apperrors.NewConflict("folder has sub-folders")
	}

	if err := s.db.WithContext(ctx).Delete(&model.Folder{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

func (s *folderStore) CountFiles(ctx context.Context, folderID uuid.UUID) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.File{}).Where("folder_id = ?", folderID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return int(count), nil
}

func (s *folderStore) CountLinks(ctx context.Context, folderID uuid.UUID) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Link{}).Where("folder_id = ?", folderID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return int(count), nil
}
