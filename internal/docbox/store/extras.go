package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/docbox/folderalgebra"
	"github.com/docboxhq/docbox/internal/pkg/database"
)

// ExtrasResolver builds model.WithExtra composites: the created-by and
// last-modified-by users (resolved from edit history) and the resolved
// folder path, mirroring the cb_/lmb_ prefixed join columns the original
// source attaches to its "with extra" reads.
type ExtrasResolver struct {
	db      *database.DB
	folders FolderStore
}

// NewExtrasResolver builds an ExtrasResolver over a tenant-scoped connection.
func NewExtrasResolver(db *database.DB, folders FolderStore) *ExtrasResolver {
	return &ExtrasResolver{db: db, folders: folders}
}

// folderLookupAdapter adapts FolderStore's (*Folder, error) shape to
// folderalgebra.FolderLookup's (Folder, bool, error) shape.
type folderLookupAdapter struct {
	folders FolderStore
}

func (a folderLookupAdapter) GetFolder(ctx context.Context, id uuid.UUID) (model.Folder, bool, error) {
	f, err := a.folders.Get(ctx, id)
	if err != nil {
		return model.Folder{}, false, err
	}
	if f == nil {
		return model.Folder{}, false, nil
	}
	return *f, true, nil
}

func (a folderLookupAdapter) ChildFolders(ctx context.Context, id uuid.UUID) ([]model.Folder, error) {
	return a.folders.Children(ctx, id)
}

func (a folderLookupAdapter) CountFiles(ctx context.Context, folderID uuid.UUID) (int, error) {
	return a.folders.CountFiles(ctx, folderID)
}

func (a folderLookupAdapter) CountLinks(ctx context.Context, folderID uuid.UUID) (int, error) {
	return a.folders.CountLinks(ctx, folderID)
}

// Lookup exposes the FolderLookup adapter so folderalgebra can be driven
// directly by callers that already hold an ExtrasResolver.
func (r *ExtrasResolver) Lookup() folderalgebra.FolderLookup {
	return folderLookupAdapter{folders: r.folders}
}

// userByID loads the display name for a user id from a denormalized
// user directory table maintained by the upstream proxy; Docbox itself
// never authenticates users, only renders the id/name pair it is handed.
func (r *ExtrasResolver) userByID(ctx context.Context, id *string) *model.User {
	if id == nil {
		return nil
	}
	var user model.User
	if err := r.db.WithContext(ctx).Table("docbox_users").Where("id = ?", *id).First(&user).Error; err != nil {
		return &model.User{ID: *id}
	}
	return &user
}

// ResolveFile builds a WithExtra[File] for one file: created-by from
// File.CreatedBy, last-modified-by/at from the most recent edit-history
// entry, and the folder path.
func (r *ExtrasResolver) ResolveFile(ctx context.Context, file model.File, history []model.EditHistoryEntry) (model.WithExtra[model.File], error) {
	path, err := folderalgebra.PathForSubject(ctx, r.Lookup(), file.FolderID)
	if err != nil {
		return model.WithExtra[model.File]{}, fmt.Errorf("resolve file path: %w", err)
	}

	extra := model.WithExtra[model.File]{
		Entity:    file,
		CreatedBy: r.userByID(ctx, file.CreatedBy),
		Path:      path,
	}
	if last := lastEntry(history); last != nil {
		extra.LastModifiedBy = r.userByID(ctx, last.UserID)
		extra.LastModifiedAt = &last.CreatedAt
	}
	return extra, nil
}

// ResolveLink mirrors ResolveFile for a Link.
func (r *ExtrasResolver) ResolveLink(ctx context.Context, link model.Link, history []model.EditHistoryEntry) (model.WithExtra[model.Link], error) {
	path, err := folderalgebra.PathForSubject(ctx, r.Lookup(), link.FolderID)
	if err != nil {
		return model.WithExtra[model.Link]{}, fmt.Errorf("resolve link path: %w", err)
	}

	extra := model.WithExtra[model.Link]{
		Entity:    link,
		CreatedBy: r.userByID(ctx, link.CreatedBy),
		Path:      path,
	}
	if last := lastEntry(history); last != nil {
		extra.LastModifiedBy = r.userByID(ctx, last.UserID)
		extra.LastModifiedAt = &last.CreatedAt
	}
	return extra, nil
}

// ResolveFolder mirrors ResolveFile for a Folder.
func (r *ExtrasResolver) ResolveFolder(ctx context.Context, folder model.Folder, history []model.EditHistoryEntry) (model.WithExtra[model.Folder], error) {
	var path []model.FolderPathSegment
	if !folder.IsRoot() {
		var err error
		path, err = folderalgebra.Path(ctx, r.Lookup(), folder.ID)
		if err != nil {
			return model.WithExtra[model.Folder]{}, fmt.Errorf("resolve folder path: %w", err)
		}
	}

	extra := model.WithExtra[model.Folder]{
		Entity:    folder,
		CreatedBy: r.userByID(ctx, folder.CreatedBy),
		Path:      path,
	}
	if last := lastEntry(history); last != nil {
		extra.LastModifiedBy = r.userByID(ctx, last.UserID)
		extra.LastModifiedAt = &last.CreatedAt
	}
	return extra, nil
}

func lastEntry(history []model.EditHistoryEntry) *model.EditHistoryEntry {
	if len(history) == 0 {
		return nil
	}
	last := history[0]
	for _, e := range history[1:] {
		if e.CreatedAt.After(last.CreatedAt) || (e.CreatedAt.Equal(last.CreatedAt) && e.Seq > last.Seq) {
			last = e
		}
	}
	return &last
}
