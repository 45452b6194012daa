package presigned

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/ingest"
	"github.com/docboxhq/docbox/internal/pkg/logger"
)

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

// fakeTaskStore is an in-memory store.PresignedTaskStore.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]model.PresignedUploadTask
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]model.PresignedUploadTask)}
}

func (s *fakeTaskStore) Create(ctx context.Context, task *model.PresignedUploadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

func (s *fakeTaskStore) Get(ctx context.Context, id uuid.UUID) (*model.PresignedUploadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *fakeTaskStore) FindByFileKey(ctx context.Context, fileKey string) (*model.PresignedUploadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.FileKey == fileKey {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeTaskStore) SetStatus(ctx context.Context, id uuid.UUID, status model.PresignedStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	t.Status = status
	s.tasks[id] = t
	return nil
}

func (s *fakeTaskStore) FindExpired(ctx context.Context, now time.Time) ([]model.PresignedUploadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PresignedUploadTask
	for _, t := range s.tasks {
		if t.Status.Kind == model.PresignedPending && now.After(t.ExpiresAt) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// fakeObjects is an in-memory objectstore.Adapter. Present keys default
// to empty content; tests that exercise hashing register real bytes via
// withContent.
type fakeObjects struct {
	mu      sync.Mutex
	present map[string]bool
	content map[string][]byte
	deleted []string
}

func newFakeObjects(present ...string) *fakeObjects {
	m := make(map[string]bool)
	for _, k := range present {
		m[k] = true
	}
	return &fakeObjects{present: m, content: make(map[string][]byte)}
}

func (o *fakeObjects) withContent(key string, body []byte) *fakeObjects {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.content[key] = body
	return o
}

func (o *fakeObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	return nil
}

func (o *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return io.NopCloser(bytes.NewReader(o.content[key])), nil
}

func (o *fakeObjects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.present, key)
	o.deleted = append(o.deleted, key)
	return nil
}

func (o *fakeObjects) Exists(ctx context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.present[key], nil
}

func (o *fakeObjects) PresignPut(ctx context.Context, key string, contentType string) (string, error) {
	return "https://upload.example/" + key, nil
}

// fakeFinalizer records Finalize calls and returns a canned File or error.
type fakeFinalizer struct {
	file *model.File
	err  error
	got  ingest.FinalizeRequest
}

func (f *fakeFinalizer) Finalize(ctx context.Context, req ingest.FinalizeRequest) (*model.File, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.file, nil
}

func TestCreate_InsertsPendingTaskAndReturnsPresignedURL(t *testing.T) {
	tasks := newFakeTaskStore()
	objects := newFakeObjects()
	c := New(tasks, objects, &fakeFinalizer{}, testLogger())

	task, url, err := c.Create(context.Background(), CreateRequest{
		Name: "report.pdf", Mime: "application/pdf", Size: 100,
		FolderID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PresignedPending, task.Status.Kind)
	assert.NotEmpty(t, url)
	assert.Contains(t, url, task.FileKey)

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, task.FileKey, stored.FileKey)
}

func TestCreate_DefaultsExpiryWhenUnset(t *testing.T) {
	tasks := newFakeTaskStore()
	c := New(tasks, newFakeObjects(), &fakeFinalizer{}, testLogger())

	before := time.Now().UTC()
	task, _, err := c.Create(context.Background(), CreateRequest{Name: "x", Mime: "text/plain", FolderID: uuid.New()})
	require.NoError(t, err)

	assert.True(t, task.ExpiresAt.After(before.Add(14*time.Minute)))
	assert.True(t, task.ExpiresAt.Before(before.Add(16*time.Minute)))
}

func TestHandleObjectEvent_UnknownKeyIsAcknowledgedAndDropped(t *testing.T) {
	c := New(newFakeTaskStore(), newFakeObjects(), &fakeFinalizer{}, testLogger())
	err := c.HandleObjectEvent(context.Background(), uuid.New(), "no/such/key")
	assert.NoError(t, err)
}

func TestHandleObjectEvent_NonPendingTaskIsIgnored(t *testing.T) {
	tasks := newFakeTaskStore()
	task := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/f1",
		Status: model.CompletedStatus(uuid.New()), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	finalizer := &fakeFinalizer{}
	c := New(tasks, newFakeObjects("presigned/f1"), finalizer, testLogger())

	err := c.HandleObjectEvent(context.Background(), uuid.New(), "presigned/f1")
	require.NoError(t, err)
	assert.Zero(t, finalizer.got) // Finalize never called
}

func TestHandleObjectEvent_MissingObjectFailsTask(t *testing.T) {
	tasks := newFakeTaskStore()
	task := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/f2",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	c := New(tasks, newFakeObjects(), &fakeFinalizer{}, testLogger())
	err := c.HandleObjectEvent(context.Background(), uuid.New(), "presigned/f2")
	require.NoError(t, err)

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedFailed, stored.Status.Kind)
}

func TestHandleObjectEvent_ExpiredTaskFailsEvenIfObjectArrived(t *testing.T) {
	tasks := newFakeTaskStore()
	task := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/f3",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	c := New(tasks, newFakeObjects("presigned/f3"), &fakeFinalizer{}, testLogger())
	err := c.HandleObjectEvent(context.Background(), uuid.New(), "presigned/f3")
	require.NoError(t, err)

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedFailed, stored.Status.Kind)
}

func TestHandleObjectEvent_SuccessFinalizesAndMarksCompleted(t *testing.T) {
	tasks := newFakeTaskStore()
	folderID := uuid.New()
	task := &model.PresignedUploadTask{
		ID: uuid.New(), Name: "report.pdf", Mime: "application/pdf", Size: 42,
		FolderID: folderID, FileKey: "presigned/f4",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	fileID := uuid.New()
	tenantID := uuid.New()
	finalizer := &fakeFinalizer{file: &model.File{ID: fileID}}
	objects := newFakeObjects("presigned/f4").withContent("presigned/f4", []byte("pdf bytes"))
	c := New(tasks, objects, finalizer, testLogger())

	err := c.HandleObjectEvent(context.Background(), tenantID, "presigned/f4")
	require.NoError(t, err)

	assert.Equal(t, tenantID, finalizer.got.TenantID)
	assert.Equal(t, "report.pdf", finalizer.got.Name)
	assert.Equal(t, folderID, finalizer.got.FolderID)
	assert.NotEmpty(t, finalizer.got.Hash)

	wantHash := sha256.Sum256([]byte("pdf bytes"))
	assert.Equal(t, hex.EncodeToString(wantHash[:]), finalizer.got.Hash)

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedCompleted, stored.Status.Kind)
	require.NotNil(t, stored.Status.FileID)
	assert.Equal(t, fileID, *stored.Status.FileID)
}

func TestHandleObjectEvent_FinalizeErrorFailsTask(t *testing.T) {
	tasks := newFakeTaskStore()
	task := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/f5",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, tasks.Create(context.Background(), task))

	finalizer := &fakeFinalizer{err: errors.New("target folder deleted")}
	c := New(tasks, newFakeObjects("presigned/f5"), finalizer, testLogger())

	err := c.HandleObjectEvent(context.Background(), uuid.New(), "presigned/f5")
	require.NoError(t, err)

	stored, err := tasks.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedFailed, stored.Status.Kind)
	assert.Equal(t, "target folder deleted", stored.Status.Reason)
}

// TestSweepExpired exercises spec.md §8 scenario 4: a pending task past
// its deadline is failed and its orphaned object removed, while a task
// that already completed is left untouched.
func TestSweepExpired(t *testing.T) {
	tasks := newFakeTaskStore()
	expired := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/stale",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	stillPending := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/fresh",
		Status: model.PendingStatus(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	alreadyDone := &model.PresignedUploadTask{
		ID: uuid.New(), FileKey: "presigned/done",
		Status: model.CompletedStatus(uuid.New()), ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, tasks.Create(context.Background(), expired))
	require.NoError(t, tasks.Create(context.Background(), stillPending))
	require.NoError(t, tasks.Create(context.Background(), alreadyDone))

	objects := newFakeObjects("presigned/stale")
	c := New(tasks, objects, &fakeFinalizer{}, testLogger())

	n, err := c.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err := tasks.Get(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedFailed, stale.Status.Kind)
	assert.Contains(t, objects.deleted, "presigned/stale")

	fresh, err := tasks.Get(context.Background(), stillPending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedPending, fresh.Status.Kind)

	done, err := tasks.Get(context.Background(), alreadyDone.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresignedCompleted, done.Status.Kind)
}
