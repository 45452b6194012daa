package folderalgebra

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docboxhq/docbox/internal/docbox/model"
)

// fakeLookup is an in-memory FolderLookup, built directly from a folder
// slice so tests can wire up trees (and cycles) without a database.
type fakeLookup struct {
	folders  map[uuid.UUID]model.Folder
	children map[uuid.UUID][]model.Folder
	files    map[uuid.UUID]int
	links    map[uuid.UUID]int
}

func newFakeLookup(folders ...model.Folder) *fakeLookup {
	l := &fakeLookup{
		folders:  make(map[uuid.UUID]model.Folder),
		children: make(map[uuid.UUID][]model.Folder),
		files:    make(map[uuid.UUID]int),
		links:    make(map[uuid.UUID]int),
	}
	for _, f := range folders {
		l.folders[f.ID] = f
		if f.FolderID != nil {
			l.children[*f.FolderID] = append(l.children[*f.FolderID], f)
		}
	}
	return l
}

func (l *fakeLookup) GetFolder(ctx context.Context, id uuid.UUID) (model.Folder, bool, error) {
	f, ok := l.folders[id]
	return f, ok, nil
}

func (l *fakeLookup) ChildFolders(ctx context.Context, id uuid.UUID) ([]model.Folder, error) {
	return l.children[id], nil
}

func (l *fakeLookup) CountFiles(ctx context.Context, folderID uuid.UUID) (int, error) {
	return l.files[folderID], nil
}

func (l *fakeLookup) CountLinks(ctx context.Context, folderID uuid.UUID) (int, error) {
	return l.links[folderID], nil
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func TestPath_RootFirstOrdering(t *testing.T) {
	root := model.Folder{ID: uuid.New(), Name: "root"}
	mid := model.Folder{ID: uuid.New(), Name: "mid", FolderID: ptr(root.ID)}
	leaf := model.Folder{ID: uuid.New(), Name: "leaf", FolderID: ptr(mid.ID)}
	lookup := newFakeLookup(root, mid, leaf)

	path, err := Path(context.Background(), lookup, leaf.ID)
	require.NoError(t, err)

	require.Len(t, path, 2)
	assert.Equal(t, root.ID, path[0].ID)
	assert.Equal(t, mid.ID, path[1].ID)
}

func TestPath_RootHasEmptyPath(t *testing.T) {
	root := model.Folder{ID: uuid.New(), Name: "root"}
	lookup := newFakeLookup(root)

	path, err := Path(context.Background(), lookup, root.ID)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestPath_UnknownFolderReturnsNilNoError(t *testing.T) {
	lookup := newFakeLookup()

	path, err := Path(context.Background(), lookup, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, path)
}

// TestPath_CycleStopsInsteadOfLooping guards the invariant violation case
// from spec.md §8 scenario 6: a corrupted folder_id back-edge cycle must
// terminate the walk rather than loop forever.
func TestPath_CycleStopsInsteadOfLooping(t *testing.T) {
	aID, bID := uuid.New(), uuid.New()
	a := model.Folder{ID: aID, Name: "a", FolderID: ptr(bID)}
	b := model.Folder{ID: bID, Name: "b", FolderID: ptr(aID)}
	lookup := newFakeLookup(a, b)

	done := make(chan struct{})
	var path []model.FolderPathSegment
	var err error
	go func() {
		path, err = Path(context.Background(), lookup, aID)
		close(done)
	}()

	select {
	case <-done:
	case <-t.Context().Done():
		t.Fatal("Path did not terminate on a cyclic folder graph")
	}

	require.NoError(t, err)
	assert.Len(t, path, 1, "cycle must break after visiting the one distinct ancestor")
}

func TestDescendantIDs_ToleratesCycles(t *testing.T) {
	rootID, childID := uuid.New(), uuid.New()
	root := model.Folder{ID: rootID, Name: "root"}
	child := model.Folder{ID: childID, Name: "child", FolderID: ptr(rootID)}
	lookup := newFakeLookup(root, child)
	// Introduce a cycle: child claims root as its own child too.
	lookup.children[childID] = append(lookup.children[childID], root)

	ids, err := DescendantIDs(context.Background(), lookup, rootID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{rootID, childID}, ids)
}

func TestCounts_AggregatesSubtree(t *testing.T) {
	rootID, childID := uuid.New(), uuid.New()
	root := model.Folder{ID: rootID, Name: "root"}
	child := model.Folder{ID: childID, Name: "child", FolderID: ptr(rootID)}
	lookup := newFakeLookup(root, child)
	lookup.files[rootID] = 2
	lookup.files[childID] = 3
	lookup.links[rootID] = 1

	counts, err := Counts(context.Background(), lookup, rootID)
	require.NoError(t, err)
	assert.Equal(t, model.FolderCounts{Files: 5, Links: 1, Folders: 2}, counts)
}

func TestPaths_DedupesAndKeepsDeepest(t *testing.T) {
	root := model.Folder{ID: uuid.New(), Name: "root"}
	leaf := model.Folder{ID: uuid.New(), Name: "leaf", FolderID: ptr(root.ID)}
	lookup := newFakeLookup(root, leaf)

	out, err := Paths(context.Background(), lookup, []uuid.UUID{leaf.ID, leaf.ID, root.ID})
	require.NoError(t, err)

	assert.Len(t, out[leaf.ID], 1)
	assert.Empty(t, out[root.ID])
}
