package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/database"
)

// EditHistoryStore is an append-only log; there is no update or delete.
type EditHistoryStore interface {
	Append(ctx context.Context, entry *model.EditHistoryEntry) error
	ByFile(ctx context.Context, fileID uuid.UUID) ([]model.EditHistoryEntry, error)
	ByLink(ctx context.Context, linkID uuid.UUID) ([]model.EditHistoryEntry, error)
	ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.EditHistoryEntry, error)
}

type editHistoryStore struct {
	db *database.DB
}

// NewEditHistoryStore builds an EditHistoryStore over a tenant-scoped connection.
func NewEditHistoryStore(db *database.DB) EditHistoryStore {
	return &editHistoryStore{db: db}
}

func (s *editHistoryStore) Append(ctx context.Context, entry *model.EditHistoryEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append edit history: %w", err)
	}
	return nil
}

// Ordering is created_at ASC then seq ASC throughout, matching Open
// Question decision 2: seq is a tie-breaker only, never surfaced as a
// version number.

func (s *editHistoryStore) ByFile(ctx context.Context, fileID uuid.UUID) ([]model.EditHistoryEntry, error) {
	var entries []model.EditHistoryEntry
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("created_at asc, seq asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list edit history by file: %w", err)
	}
	return entries, nil
}

func (s *editHistoryStore) ByLink(ctx context.Context, linkID uuid.UUID) ([]model.EditHistoryEntry, error) {
	var entries []model.EditHistoryEntry
	err := s.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("created_at asc, seq asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list edit history by link: %w", err)
	}
	return entries, nil
}

func (s *editHistoryStore) ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.EditHistoryEntry, error) {
	var entries []model.EditHistoryEntry
	err := s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Order("created_at asc, seq asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list edit history by folder: %w", err)
	}
	return entries, nil
}
