// Package ingest implements C6, the ingestion coordinator: direct and
// presigned upload flows, both converging on the same transactional
// finalization step, grounded on the teacher's use-case orchestration
// shape (interface-injected repos + services, one transactional create).
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/docbox/store"
	"github.com/docboxhq/docbox/internal/objectstore"
	"github.com/docboxhq/docbox/internal/pkg/apperrors"
	"github.com/docboxhq/docbox/internal/pkg/database"
	"github.com/docboxhq/docbox/internal/pkg/logger"
	"github.com/docboxhq/docbox/internal/pkg/workerpool"
	"github.com/docboxhq/docbox/internal/search"
)

// DerivationEnqueuer decouples ingest from the concrete processing.Queue
// type so this package never imports the search/redis/mime stack
// directly.
type DerivationEnqueuer interface {
	Enqueue(ctx context.Context, tenantID, fileID uuid.UUID) error
}

// Coordinator implements both upload modes from spec.md §4.4.
type Coordinator struct {
	db          *database.DB
	files       store.FileStore
	folders     store.FolderStore
	history     store.EditHistoryStore
	presigned   store.PresignedTaskStore
	objects     objectstore.Adapter
	searchIdx   search.Backend
	derivations DerivationEnqueuer
	pool        *workerpool.Pool
	log         *logger.Logger
}

// New builds a Coordinator for one tenant's resolved handle.
func New(
	db *database.DB,
	files store.FileStore,
	folders store.FolderStore,
	history store.EditHistoryStore,
	presigned store.PresignedTaskStore,
	objects objectstore.Adapter,
	searchIdx search.Backend,
	derivations DerivationEnqueuer,
	pool *workerpool.Pool,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		db: db, files: files, folders: folders, history: history,
		presigned: presigned, objects: objects, searchIdx: searchIdx,
		derivations: derivations, pool: pool, log: log,
	}
}

// DirectUploadRequest describes the target and payload of a direct
// upload (§4.4 mode 1).
type DirectUploadRequest struct {
	TenantID    uuid.UUID
	Name        string
	Mime        string
	FolderID    uuid.UUID
	ParentID    *uuid.UUID
	Body        io.Reader
	CreatedBy   *string
}

// hashingReader streams through r while accumulating a SHA-256 digest and
// byte count, so DirectUpload never buffers the whole body in memory.
type hashingReader struct {
	r    io.Reader
	h    interface{ Write([]byte) (int, error) }
	size int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.size += int64(n)
	}
	return n, err
}

func (hr *hashingReader) Sum() (string, int64) {
	sum := hr.h.(interface{ Sum([]byte) []byte }).Sum(nil)
	return hex.EncodeToString(sum), hr.size
}

// DirectUpload implements the direct-upload flow: stream+hash, write to
// the object store at a fresh key, insert the File row and an edit
// history Create entry in one transaction, then asynchronously trigger
// derivation and synchronously index the name.
func (c *Coordinator) DirectUpload(ctx context.Context, req DirectUploadRequest) (*model.File, error) {
	folder, err := c.folders.Get(ctx, req.FolderID)
	if err != nil {
		return nil, fmt.Errorf("look up target folder: %w", err)
	}
	if folder == nil {
		return nil, apperrors.NewNotFound("folder")
	}

	fileKey := newFileKey()
	hr := newHashingReader(req.Body)

	// Object bytes are written before the transactional row insert; if
	// the transaction fails the object is orphaned and scheduled for
	// delete rather than rolled back (S3 has no transactional rollback).
	if err := c.objects.Put(ctx, fileKey, hr, -1, req.Mime); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailure, "direct upload put")
	}

	hash, size := hr.Sum()
	file := &model.File{
		ID:        uuid.New(),
		Name:      req.Name,
		Mime:      req.Mime,
		FolderID:  req.FolderID,
		ParentID:  req.ParentID,
		Hash:      hash,
		Size:      size,
		FileKey:   fileKey,
		CreatedAt: time.Now().UTC(),
		CreatedBy: req.CreatedBy,
	}

	entry := &model.EditHistoryEntry{
		ID:        uuid.New(),
		FileID:    &file.ID,
		UserID:    req.CreatedBy,
		Type:      model.EditCreate,
		Metadata:  model.JSONMap{"name": req.Name},
		CreatedAt: file.CreatedAt,
	}

	// File row and its Create edit-history entry commit atomically; the
	// object write above cannot participate in the same transaction, so a
	// failure here still leaves the uploaded bytes for scheduleOrphanDelete.
	err = c.db.WithContext(ctx).Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return fmt.Errorf("insert file row: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append edit history: %w", err)
		}
		return nil
	})
	if err != nil {
		c.scheduleOrphanDelete(fileKey)
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailure, "direct upload transaction")
	}

	if err := c.searchIdx.Index(search.IndexDoc{
		ItemID: file.ID, ItemType: search.ItemFile, DocumentBox: folder.DocumentBox,
		FolderID: file.FolderID, Name: file.Name, Mime: file.Mime, CreatedAt: file.CreatedAt,
		CreatedBy: derefString(file.CreatedBy),
	}); err != nil {
		// At-least-once indexing: log and continue, per spec.md §4.5; the
		// admin reindex operation (Reindex) recovers from this later.
		c.log.Warn("index file after direct upload failed", zap.String("file_id", file.ID.String()), zap.Error(err))
	}

	if c.derivations != nil {
		_ = c.pool.Submit(func() {
			_ = c.derivations.Enqueue(context.Background(), req.TenantID, file.ID)
		})
	}

	return file, nil
}

// FinalizeRequest describes a presigned-upload task whose object has
// landed in the bucket and is ready for the same finalization steps as
// a direct upload (spec.md §4.4 step 2, driven by internal/eventreconciler).
type FinalizeRequest struct {
	TenantID  uuid.UUID
	Name      string
	Mime      string
	FolderID  uuid.UUID
	ParentID  *uuid.UUID
	FileKey   string
	Size      int64
	Hash      string
	CreatedBy *string
}

// Finalize inserts the File row and edit history for an object that is
// already present in the bucket (the presigned-upload path), then runs
// the same indexing/derivation steps DirectUpload does.
func (c *Coordinator) Finalize(ctx context.Context, req FinalizeRequest) (*model.File, error) {
	folder, err := c.folders.Get(ctx, req.FolderID)
	if err != nil {
		return nil, fmt.Errorf("look up target folder: %w", err)
	}
	if folder == nil {
		return nil, apperrors.NewNotFound("folder")
	}

	file := &model.File{
		ID:        uuid.New(),
		Name:      req.Name,
		Mime:      req.Mime,
		FolderID:  req.FolderID,
		ParentID:  req.ParentID,
		Hash:      req.Hash,
		Size:      req.Size,
		FileKey:   req.FileKey,
		CreatedAt: time.Now().UTC(),
		CreatedBy: req.CreatedBy,
	}
	entry := &model.EditHistoryEntry{
		ID:        uuid.New(),
		FileID:    &file.ID,
		UserID:    req.CreatedBy,
		Type:      model.EditCreate,
		Metadata:  model.JSONMap{"name": req.Name},
		CreatedAt: file.CreatedAt,
	}

	err = c.db.WithContext(ctx).Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return fmt.Errorf("insert file row: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("append edit history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailure, "finalize transaction")
	}

	if err := c.searchIdx.Index(search.IndexDoc{
		ItemID: file.ID, ItemType: search.ItemFile, DocumentBox: folder.DocumentBox,
		FolderID: file.FolderID, Name: file.Name, Mime: file.Mime, CreatedAt: file.CreatedAt,
		CreatedBy: derefString(file.CreatedBy),
	}); err != nil {
		c.log.Warn("index file after finalize failed", zap.String("file_id", file.ID.String()), zap.Error(err))
	}

	if c.derivations != nil {
		_ = c.pool.Submit(func() {
			_ = c.derivations.Enqueue(context.Background(), req.TenantID, file.ID)
		})
	}

	return file, nil
}

// Reindex re-derives and re-writes the search document for an existing
// file from its currently stored rows (name, mime, folder, pages) with
// no re-derivation of artifacts, the admin recovery path for files whose
// write-through index failed or drifted (spec.md §4.5/§9): a pure
// function of already-persisted state, safe to call repeatedly.
func (c *Coordinator) Reindex(ctx context.Context, fileID uuid.UUID) error {
	file, err := c.files.Get(ctx, fileID)
	if err != nil {
		return fmt.Errorf("look up file: %w", err)
	}
	if file == nil {
		return apperrors.NewNotFound("file")
	}

	folder, err := c.folders.Get(ctx, file.FolderID)
	if err != nil {
		return fmt.Errorf("look up owning folder: %w", err)
	}
	if folder == nil {
		return apperrors.NewNotFound("folder")
	}

	pages, err := c.files.PagesForFile(ctx, file.ID)
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
		CreatedBy: derefString(file.CreatedBy),
	}
	if err := c.searchIdx.Index(doc); err != nil {
		return apperrors.Wrap(err, apperrors.ErrProcessingFailure, "reindex file")
	}
	return nil
}

func (c *Coordinator) scheduleOrphanDelete(fileKey string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = c.objects.Delete(ctx, fileKey)
	}()
}

func newFileKey() string {
	return fmt.Sprintf("files/%s", uuid.New())
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
