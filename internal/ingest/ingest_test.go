package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/apperrors"
	"github.com/docboxhq/docbox/internal/search"
)

func TestHashingReader_TracksSizeAndSHA256(t *testing.T) {
	body := "the quick brown fox jumps over the lazy dog"
	hr := newHashingReader(strings.NewReader(body))

	buf := make([]byte, 7)
	var read int
	for {
		n, err := hr.Read(buf)
		read += n
		if err != nil {
			break
		}
	}

	sum, size := hr.Sum()
	assert.Equal(t, int64(len(body)), size)
	assert.Equal(t, len(body), read)

	want := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(want[:]), sum)
}

func TestNewFileKey_HasFilesPrefix(t *testing.T) {
	key := newFileKey()
	assert.True(t, strings.HasPrefix(key, "files/"))
}

// fakeFolders is the minimal store.FolderStore surface DirectUpload/Finalize
// touch: a Get lookup. Other methods panic if reached since a real
// ingest.Coordinator never calls them.
type fakeFolders struct {
	byID map[uuid.UUID]*model.Folder
}

func (f *fakeFolders) Get(ctx context.Context, id uuid.UUID) (*model.Folder, error) {
	return f.byID[id], nil
}
func (f *fakeFolders) Create(ctx context.Context, folder *model.Folder) error { panic("unused") }
func (f *fakeFolders) GetRoot(ctx context.Context, documentBox string) (*model.Folder, error) {
	panic("unused")
}
func (f *fakeFolders) Children(ctx context.Context, folderID uuid.UUID) ([]model.Folder, error) {
	panic("unused")
}
func (f *fakeFolders) Rename(ctx context.Context, id uuid.UUID, name string) error { panic("unused") }
func (f *fakeFolders) MoveToFolder(ctx context.Context, id uuid.UUID, newParent uuid.UUID) error {
	panic("unused")
}
func (f *fakeFolders) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	panic("unused")
}
func (f *fakeFolders) Delete(ctx context.Context, id uuid.UUID) error { panic("unused") }
func (f *fakeFolders) CountFiles(ctx context.Context, folderID uuid.UUID) (int, error) {
	panic("unused")
}
func (f *fakeFolders) CountLinks(ctx context.Context, folderID uuid.UUID) (int, error) {
	panic("unused")
}

func TestDirectUpload_UnknownFolderReturnsNotFoundWithoutTouchingObjectStore(t *testing.T) {
	folders := &fakeFolders{byID: map[uuid.UUID]*model.Folder{}}
	c := &Coordinator{folders: folders}

	_, err := c.DirectUpload(context.Background(), DirectUploadRequest{
		Name: "x.txt", Mime: "text/plain", FolderID: uuid.New(), Body: strings.NewReader("hi"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestFinalize_UnknownFolderReturnsNotFound(t *testing.T) {
	folders := &fakeFolders{byID: map[uuid.UUID]*model.Folder{}}
	c := &Coordinator{folders: folders}

	_, err := c.Finalize(context.Background(), FinalizeRequest{
		Name: "x.pdf", Mime: "application/pdf", FolderID: uuid.New(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

// fakeSearchBackend is a no-op search.Backend, passed to New by the
// tests below that need a non-nil search dependency.
type fakeSearchBackend struct{}

func (fakeSearchBackend) Index(doc search.IndexDoc) error                  { return nil }
func (fakeSearchBackend) Delete(itemID uuid.UUID, itemType search.ItemType) error { return nil }
func (fakeSearchBackend) Query(filters search.Filters) (search.Page, error)       { return search.Page{}, nil }

func TestDirectUpload_ObjectStorePutFailureIsWrappedAsStorageFailure(t *testing.T) {
	folderID := uuid.New()
	folders := &fakeFolders{byID: map[uuid.UUID]*model.Folder{
		folderID: {ID: folderID, DocumentBox: "box1"},
	}}

	objects := &objectPutFailer{err: errors.New("connection refused")}
	c := New(nil, nil, folders, nil, nil, objects, fakeSearchBackend{}, nil, nil, nil)

	_, err := c.DirectUpload(context.Background(), DirectUploadRequest{
		Name: "x.txt", Mime: "text/plain", FolderID: folderID, Body: strings.NewReader("hi"),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageFailure))
}

// objectPutFailer implements objectstore.Adapter with a Put that always
// fails; the other methods are unreachable from this test's path.
type objectPutFailer struct{ err error }

func (o *objectPutFailer) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return o.err
}
func (o *objectPutFailer) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	panic("unused")
}
func (o *objectPutFailer) Delete(ctx context.Context, key string) error { panic("unused") }
func (o *objectPutFailer) Exists(ctx context.Context, key string) (bool, error) {
	panic("unused")
}
func (o *objectPutFailer) PresignPut(ctx context.Context, key string, contentType string) (string, error) {
	panic("unused")
}

// fakeFiles is the minimal store.FileStore surface Reindex touches: a Get
// and a PagesForFile lookup. Other methods panic if reached.
type fakeFiles struct {
	byID  map[uuid.UUID]*model.File
	pages []model.FilePage
}

func (f *fakeFiles) Get(ctx context.Context, id uuid.UUID) (*model.File, error) { return f.byID[id], nil }
func (f *fakeFiles) PagesForFile(ctx context.Context, fileID uuid.UUID) ([]model.FilePage, error) {
	return f.pages, nil
}
func (f *fakeFiles) Create(ctx context.Context, file *model.File) error { panic("unused") }
func (f *fakeFiles) GetByHash(ctx context.Context, hash string) (*model.File, error) {
	panic("unused")
}
func (f *fakeFiles) ByFolder(ctx context.Context, folderID uuid.UUID) ([]model.File, error) {
	panic("unused")
}
func (f *fakeFiles) Rename(ctx context.Context, id uuid.UUID, name string) error { panic("unused") }
func (f *fakeFiles) MoveToFolder(ctx context.Context, id uuid.UUID, newFolder uuid.UUID) error {
	panic("unused")
}
func (f *fakeFiles) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	panic("unused")
}
func (f *fakeFiles) Delete(ctx context.Context, id uuid.UUID) error { panic("unused") }
func (f *fakeFiles) CreateGeneratedFile(ctx context.Context, gf *model.GeneratedFile) error {
	panic("unused")
}
func (f *fakeFiles) GeneratedFilesForFile(ctx context.Context, fileID uuid.UUID) ([]model.GeneratedFile, error) {
	panic("unused")
}
func (f *fakeFiles) GeneratedFileByHash(ctx context.Context, fileID uuid.UUID, typ model.GeneratedFileType, hash string) (*model.GeneratedFile, error) {
	panic("unused")
}
func (f *fakeFiles) DeleteGeneratedFiles(ctx context.Context, fileID uuid.UUID) error {
	panic("unused")
}
func (f *fakeFiles) UpsertPages(ctx context.Context, pages []model.FilePage) error { panic("unused") }
func (f *fakeFiles) TotalCount(ctx context.Context, documentBox string) (int64, error) {
	panic("unused")
}
func (f *fakeFiles) TotalSize(ctx context.Context, documentBox string) (int64, error) {
	panic("unused")
}
func (f *fakeFiles) TotalSizeWithinScope(ctx context.Context, folderIDs []uuid.UUID) (int64, error) {
	panic("unused")
}

func TestReindex_UnknownFileReturnsNotFound(t *testing.T) {
	files := &fakeFiles{byID: map[uuid.UUID]*model.File{}}
	c := &Coordinator{files: files}

	err := c.Reindex(context.Background(), uuid.New())

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestReindex_ReDerivesIndexDocFromStoredState(t *testing.T) {
	fileID := uuid.New()
	folderID := uuid.New()
	file := &model.File{ID: fileID, Name: "report.pdf", Mime: "application/pdf", FolderID: folderID}
	folders := &fakeFolders{byID: map[uuid.UUID]*model.Folder{
		folderID: {ID: folderID, DocumentBox: "box1"},
	}}
	files := &fakeFiles{
		byID:  map[uuid.UUID]*model.File{fileID: file},
		pages: []model.FilePage{{FileID: fileID, Page: 1, Content: "quarterly results"}},
	}

	var indexed search.IndexDoc
	backend := indexRecorder{onIndex: func(doc search.IndexDoc) { indexed = doc }}

	c := &Coordinator{files: files, folders: folders, searchIdx: backend}

	err := c.Reindex(context.Background(), fileID)

	require.NoError(t, err)
	assert.Equal(t, fileID, indexed.ItemID)
	assert.Equal(t, "box1", indexed.DocumentBox)
	assert.Equal(t, "report.pdf", indexed.Name)
	require.Len(t, indexed.ContentPages, 1)
	assert.Equal(t, "quarterly results", indexed.ContentPages[0].Text)
}

// indexRecorder is a search.Backend whose Index call is observable by the
// test, everything else unreachable from Reindex.
type indexRecorder struct {
	onIndex func(doc search.IndexDoc)
}

func (r indexRecorder) Index(doc search.IndexDoc) error {
	r.onIndex(doc)
	return nil
}
func (r indexRecorder) Delete(itemID uuid.UUID, itemType search.ItemType) error { panic("unused") }
func (r indexRecorder) Query(filters search.Filters) (search.Page, error)      { panic("unused") }
