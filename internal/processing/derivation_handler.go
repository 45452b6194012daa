package processing

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/docbox/store"
	"github.com/docboxhq/docbox/internal/objectstore"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	"github.com/docboxhq/docbox/internal/search"
	"github.com/docboxhq/docbox/internal/tenant"
)

// ObjectStoreFactory builds (or reuses) an objectstore.Adapter for a
// tenant's bucket. A process-wide adapter cache is the caller's concern;
// this package only calls the factory once per task.
type ObjectStoreFactory func(bucket string) (objectstore.Adapter, error)

// SearchBackendFactory builds (or reuses) a search.Backend for a
// tenant's index, mirroring ObjectStoreFactory's caching contract.
type SearchBackendFactory func(handle tenant.Handle) (search.Backend, error)

// DerivationHandler implements processing.Handler: it resolves the
// owning tenant, loads the source File, runs the mime-dispatched plan,
// persists artifacts idempotently by content hash, and reindexes.
type DerivationHandler struct {
	registry   *tenant.Registry
	env        string
	objects    ObjectStoreFactory
	searches   SearchBackendFactory
	planner    *Planner
	log        *logger.Logger
}

// NewDerivationHandler builds a DerivationHandler bound to one deployment
// environment (matching conf.ServerConfig.Env, since Task carries only a
// tenant id).
func NewDerivationHandler(registry *tenant.Registry, env string, objects ObjectStoreFactory, searches SearchBackendFactory, planner *Planner, log *logger.Logger) *DerivationHandler {
	return &DerivationHandler{registry: registry, env: env, objects: objects, searches: searches, planner: planner, log: log}
}

// Handle implements processing.Handler.
func (h *DerivationHandler) Handle(ctx context.Context, task Task) (Stage, string, error) {
	handle, err := h.registry.Resolve(ctx, h.env, task.TenantID)
	if err != nil {
		return StageProbing, "tenant unavailable", fmt.Errorf("resolve tenant: %w", err)
	}

	files := store.NewFileStore(handle.DB)
	folders := store.NewFolderStore(handle.DB)

	file, err := files.Get(ctx, task.FileID)
	if err != nil {
		return StageProbing, "file lookup failed", fmt.Errorf("get file: %w", err)
	}
	if file == nil {
		// The file was deleted between enqueue and pickup; nothing to do.
		return StageDone, "", nil
	}

	folder, err := folders.Get(ctx, file.FolderID)
	if err != nil || folder == nil {
		return StageProbing, "owning folder missing", fmt.Errorf("get owning folder: %w", err)
	}

	objects, err := h.objects(handle.Bucket)
	if err != nil {
		return StageProbing, "object store unavailable", fmt.Errorf("build object store adapter: %w", err)
	}

	body, err := readAll(ctx, objects, file.FileKey)
	if err != nil {
		return StageProbing, "source object unreadable", fmt.Errorf("read source object: %w", err)
	}

	result, err := h.planner.Run(ctx, file.Mime, body)
	if err != nil {
		return StageDeriving, err.Error(), fmt.Errorf("run derivation plan: %w", err)
	}

	if err := h.persistArtifacts(ctx, handle, files, objects, file, result); err != nil {
		return StageDeriving, "artifact persistence failed", err
	}

	if err := h.reindex(ctx, handle, files, folder, file); err != nil {
		// Indexing is at-least-once per spec.md §4.5: log and still report
		// Done, since the File and its artifacts are durably persisted.
		h.log.Warn("reindex after derivation failed",
			zap.String("file_id", file.ID.String()), zap.Error(err))
	}

	return StageDone, "", nil
}

func (h *DerivationHandler) persistArtifacts(ctx context.Context, handle tenant.Handle, files store.FileStore, objects objectstore.Adapter, file *model.File, result PlanResult) error {
	var pages []model.FilePage

	for _, artifact := range result.Artifacts {
		if artifact.Page > 0 {
			pages = append(pages, model.FilePage{FileID: file.ID, Page: artifact.Page, Content: artifact.Content})
			continue
		}

		existing, err := files.GeneratedFileByHash(ctx, file.ID, artifact.Type, artifact.Hash)
		if err != nil {
			return fmt.Errorf("check existing generated file: %w", err)
		}
		if existing != nil {
			// Same content already derived; idempotent re-run, skip the write.
			continue
		}

		key := fmt.Sprintf("generated/%s/%s/%s", file.ID, artifact.Type, artifact.Hash)
		if err := objects.Put(ctx, key, bytes.NewReader(artifact.Bytes), int64(len(artifact.Bytes)), artifact.Mime); err != nil {
			return fmt.Errorf("store generated artifact %s: %w", artifact.Type, err)
		}

		gf := &model.GeneratedFile{
			ID: uuid.New(), FileID: file.ID, Mime: artifact.Mime,
			Type: artifact.Type, Hash: artifact.Hash, FileKey: key,
		}
		if err := files.CreateGeneratedFile(ctx, gf); err != nil {
			return fmt.Errorf("record generated file: %w", err)
		}
	}

	if len(pages) > 0 {
		if err := files.UpsertPages(ctx, pages); err != nil {
			return fmt.Errorf("upsert file pages: %w", err)
		}
	}

	for _, child := range result.Children {
		childKey := fmt.Sprintf("files/%s", uuid.New())
		if err := objects.Put(ctx, childKey, bytes.NewReader(child.Bytes), int64(len(child.Bytes)), child.Mime); err != nil {
			return fmt.Errorf("store child attachment %s: %w", child.Name, err)
		}
		childFile := &model.File{
			ID: uuid.New(), Name: child.Name, Mime: child.Mime,
			FolderID: file.FolderID, ParentID: &file.ID,
			Hash: hashOf(child.Bytes), Size: int64(len(child.Bytes)), FileKey: childKey,
		}
		if err := files.Create(ctx, childFile); err != nil {
			return fmt.Errorf("record child attachment %s: %w", child.Name, err)
		}
	}

	return nil
}

func (h *DerivationHandler) reindex(ctx context.Context, handle tenant.Handle, files store.FileStore, folder *model.Folder, file *model.File) error {
	backend, err := h.searches(handle)
	if err != nil {
		return fmt.Errorf("build search backend: %w", err)
	}

	pages, err := files.PagesForFile(ctx, file.ID)
	if err != nil {
		return fmt.Errorf("load file pages: %w", err)
	}

	contentPages := make([]search.ContentPage, len(pages))
	for i, p := range pages {
		contentPages[i] = search.ContentPage{Page: p.Page, Text: p.Content}
	}

	doc := search.IndexDoc{
		ItemID: file.ID, ItemType: search.ItemFile, DocumentBox: folder.DocumentBox,
		FolderID: file.FolderID, Name: file.Name, Mime: file.Mime,
		CreatedAt: file.CreatedAt, ContentPages: contentPages,
	}
	if file.CreatedBy != nil {
		doc.CreatedBy = *file.CreatedBy
	}

	if err := backend.Index(doc); err != nil {
		return fmt.Errorf("index file: %w", err)
	}
	return nil
}

func readAll(ctx context.Context, objects objectstore.Adapter, key string) ([]byte, error) {
	rc, err := objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
