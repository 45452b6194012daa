// Package folderalgebra implements the three recursive folder operations
// from spec.md §4.1 (C9) — path resolution, subtree enumeration, and
// subtree counting — as iterative, application-level walks with explicit
// cycle protection, substituting for the source's recursive CTEs per
// spec.md §9's design note.
package folderalgebra

import (
	"context"

	"github.com/google/uuid"

	"github.com/docboxhq/docbox/internal/docbox/model"
)

// FolderLookup is the minimal read surface this package needs from the
// store; kept narrow so folder algebra can be unit tested against a fake
// without pulling in GORM.
type FolderLookup interface {
	// GetFolder returns the folder with the given id, or ok=false if it
	// does not exist.
	GetFolder(ctx context.Context, id uuid.UUID) (folder model.Folder, ok bool, err error)
	// ChildFolders returns the direct children of the given folder id.
	ChildFolders(ctx context.Context, id uuid.UUID) ([]model.Folder, error)
	// CountFiles/CountLinks return direct counts scoped to a folder id.
	CountFiles(ctx context.Context, folderID uuid.UUID) (int, error)
	CountLinks(ctx context.Context, folderID uuid.UUID) (int, error)
}

// Path walks parent pointers from id upward, emitting ancestors only
// (id itself is excluded), deepest-first internally then reversed so the
// result is root-first. A cycle (invariant violation) is broken the first
// time an id repeats; the walk never visits more than the number of
// distinct folders it has already seen.
func Path(ctx context.Context, lookup FolderLookup, id uuid.UUID) ([]model.FolderPathSegment, error) {
	var reversed []model.FolderPathSegment
	visited := map[uuid.UUID]bool{id: true}

	current, ok, err := lookup.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	for current.FolderID != nil {
		parentID := *current.FolderID
		if visited[parentID] {
			// Cycle detected: the caller is responsible for logging the
			// invariant violation; we simply stop extending the path.
			break
		}
		visited[parentID] = true

		parent, ok, err := lookup.GetFolder(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		reversed = append(reversed, model.FolderPathSegment{ID: parent.ID, Name: parent.Name})
		current = parent
	}

	// reversed is currently nearest-ancestor-first; flip to root-first.
	out := make([]model.FolderPathSegment, len(reversed))
	for i, seg := range reversed {
		out[len(reversed)-1-i] = seg
	}
	return out, nil
}

// PathForSubject resolves the path for a File or Link, which defers to
// the path of its parent folder (the subject itself is never part of its
// own path).
func PathForSubject(ctx context.Context, lookup FolderLookup, folderID uuid.UUID) ([]model.FolderPathSegment, error) {
	folder, ok, err := lookup.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	ancestors, err := Path(ctx, lookup, folderID)
	if err != nil {
		return nil, err
	}
	return append(ancestors, model.FolderPathSegment{ID: folder.ID, Name: folder.Name}), nil
}

// Paths computes paths for many subjects in one pass. At most one row is
// returned per subject; if a subject id is requested more than once, the
// deepest resolvable path wins (matches spec.md §4.1's batch contract).
func Paths(ctx context.Context, lookup FolderLookup, ids []uuid.UUID) (map[uuid.UUID][]model.FolderPathSegment, error) {
	out := make(map[uuid.UUID][]model.FolderPathSegment, len(ids))
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		p, err := Path(ctx, lookup, id)
		if err != nil {
			return nil, err
		}
		if existing, ok := out[id]; !ok || len(p) > len(existing) {
			out[id] = p
		}
	}
	return out, nil
}

// DescendantIDs yields root and every transitive child reachable via the
// folder_id back-edge, breadth-first, tolerating cycles via a visited set.
func DescendantIDs(ctx context.Context, lookup FolderLookup, root uuid.UUID) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]bool{root: true}
	out := []uuid.UUID{root}
	queue := []uuid.UUID{root}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := lookup.ChildFolders(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			out = append(out, child.ID)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// Counts aggregates the distinct file, link, and folder counts across the
// subtree rooted at root (root included as a folder).
func Counts(ctx context.Context, lookup FolderLookup, root uuid.UUID) (model.FolderCounts, error) {
	descendants, err := DescendantIDs(ctx, lookup, root)
	if err != nil {
		return model.FolderCounts{}, err
	}

	counts := model.FolderCounts{Folders: len(descendants)}
	for _, id := range descendants {
		files, err := lookup.CountFiles(ctx, id)
		if err != nil {
			return model.FolderCounts{}, err
		}
		links, err := lookup.CountLinks(ctx, id)
		if err != nil {
			return model.FolderCounts{}, err
		}
		counts.Files += files
		counts.Links += links
	}
	return counts, nil
}
