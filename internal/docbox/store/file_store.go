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

// FileStore persists File rows and their derived GeneratedFile/FilePage
// children for one tenant database.
type FileStore interface {
	Create(ctx context.Context, file *model.File) error
	Get(ctx context.Context, id uuid.UUID) (*model.File, error)
	GetByHash(ctx context.Context, hash string) (*model.File, error)
	ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.File, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	MoveToFolder(ctx context.Context, id uuid.UUID, newFolder uuid.UUID) error
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateGeneratedFile(ctx context.Context, gf *model.GeneratedFile) error
	GeneratedFilesForFile(ctx context.Context, fileID uuid.UUID) ([]model.GeneratedFile, error)
	GeneratedFileByHash(ctx context.Context, fileID uuid.UUID, typ model.GeneratedFileType, hash string) (*model.GeneratedFile, error)
	DeleteGeneratedFiles(ctx context.Context, fileID uuid.UUID) error

	UpsertPages(ctx context.Context, pages []model.FilePage) error
	PagesForFile(ctx context.Context, fileID uuid.UUID) ([]model.FilePage, error)

	// TotalCount and TotalSize implement the admin aggregates from
	// the original source: unscoped totals across a document box.
	TotalCount(ctx context.Context, documentBox string) (int64, error)
	TotalSize(ctx context.Context, documentBox string) (int64, error)
	// TotalSizeWithinScope sums sizes only for the given folder ids
	// (used by folderalgebra.Counts callers that need bytes, not just
	// item counts).
	TotalSizeWithinScope(ctx context.Context, folderIDs []uuid.UUID) (int64, error)
}

type fileStore struct {
	db *database.DB
}

// NewFileStore builds a FileStore over a tenant-scoped connection.
func NewFileStore(db *database.DB) FileStore {
	return &fileStore{db: db}
}

func (s *fileStore) Create(ctx context.Context, file *model.File) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (s *fileStore) Get(ctx context.Context, id uuid.UUID) (*model.File, error) {
	var file model.File
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	return &file, nil
}

func (s *fileStore) GetByHash(ctx context.Context, hash string) (*model.File, error) {
	var file model.File
	err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file by hash: %w", err)
	}
	return &file, nil
}

func (s *fileStore) ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.File, error) {
	var files []model.File
	if err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list files by folder: %w", err)
	}
	return files, nil
}

func (s *fileStore) Rename(ctx context.Context, id uuid.UUID, name string) error {
	if err := s.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("name", name).Error; err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *fileStore) MoveToFolder(ctx context.Context, id uuid.UUID, newFolder uuid.UUID) error {
	if err := s.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("folder_id", newFolder).Error; err != nil {
		return fmt.Errorf("move file: %w", err)
	}
	return nil
}

func (s *fileStore) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	if err := s.db.WithContext(ctx).Model(&model.File{}).Where("id = ?", id).Update("pinned", pinned).Error; err != nil {
		return fmt.Errorf("set file pinned: %w", err)
	}
	return nil
}

// Delete removes a file. Any attachment whose ParentID points at id is
// nulled rather than cascaded, per spec.md §3 ("on progenitor deletion
// it is nulled; attachments may outlive"), so children remain reachable
// as standalone files in the same folder.
func (s *fileStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Model(&model.File{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return fmt.Errorf("null attachment parent ids: %w", err)
		}
		if err := tx.Delete(&model.File{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
		return nil
	})
}

func (s *fileStore) CreateGeneratedFile(ctx context.Context, gf *model.GeneratedFile) error {
	if err := s.db.WithContext(ctx).Create(gf).Error; err != nil {
		return fmt.Errorf("create generated file: %w", err)
	}
	return nil
}

func (s *fileStore) GeneratedFilesForFile(ctx context.Context, fileID uuid.UUID) ([]model.GeneratedFile, error) {
	var files []model.GeneratedFile
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list generated files: %w", err)
	}
	return files, nil
}

func (s *fileStore) GeneratedFileByHash(ctx context.Context, fileID uuid.UUID, typ model.GeneratedFileType, hash string) (*model.GeneratedFile, error) {
	var gf model.GeneratedFile
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND type = ? AND hash = ?", fileID, typ, hash).
		First(&gf).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get generated file by hash: %w", err)
	}
	return &gf, nil
}

func (s *fileStore) DeleteGeneratedFiles(ctx context.Context, fileID uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&model.GeneratedFile{}, "file_id = ?", fileID).Error; err != nil {
		return fmt.Errorf("delete generated files: %w", err)
	}
	return nil
}

func (s *fileStore) UpsertPages(ctx context.Context, pages []model.FilePage) error {
	if len(pages) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Save(&pages).Error; err != nil {
		return fmt.Errorf("upsert file pages: %w", err)
	}
	return nil
}

func (s *fileStore) PagesForFile(ctx context.Context, fileID uuid.UUID) ([]model.FilePage, error) {
	var pages []model.FilePage
	if err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Order("page asc").Find(&pages).Error; err != nil {
		return nil, fmt.Errorf("list file pages: %w", err)
	}
	return pages, nil
}

func (s *fileStore) TotalCount(ctx context.Context, documentBox string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.File{}).
		Joins("JOIN docbox_folders ON docbox_folders.id = docbox_files.folder_id").
		Where("docbox_folders.document_box = ?", documentBox).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("total file count: %w", err)
	}
	return count, nil
}

func (s *fileStore) TotalSize(ctx context.Context, documentBox string) (int64, error) {
	var total *int64
	err := s.db.WithContext(ctx).Model(&model.File{}).
		Joins("JOIN docbox_folders ON docbox_folders.id = docbox_files.folder_id").
		Where("docbox_folders.document_box = ?", documentBox).
		Select("SUM(docbox_files.size)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("total file size: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (s *fileStore) TotalSizeWithinScope(ctx context.Context, folderIDs []uuid.UUID) (int64, error) {
	if len(folderIDs) == 0 {
		return 0, nil
	}
	var total *int64
	err := s.db.WithContext(ctx).Model(&model.File{}).
		Where("folder_id IN ?", folderIDs).
		Select("SUM(size)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("total file size within scope: %w", err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
