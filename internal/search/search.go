// Package search implements C4/C8: the hybrid lexical + tokenized search
// engine sitting behind one Backend interface, with two interchangeable
// implementations (Postgres-resident and Typesense-external) and the
// rank-fusion arithmetic that both backends feed into a common
// RankedMatch stream.
package search

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemType distinguishes the three searchable subject kinds.
type ItemType string

const (
	ItemFolder ItemType = "Folder"
	ItemFile   ItemType = "File"
	ItemLink   ItemType = "Link"
)

// IndexDoc is the write-through unit fed to a Backend on any create,
// update, or delete of a File, Folder, or Link (including page content
// changes). Indexing is at-least-once — callers must be safe to
// re-index the same document.
type IndexDoc struct {
	ItemID       uuid.UUID
	ItemType     ItemType
	DocumentBox  string
	FolderID     uuid.UUID
	Name         string
	Value        string // Link value, for content matching
	ContentPages []ContentPage
	CreatedAt    time.Time
	CreatedBy    string
	Mime         string // files only
}

// ContentPage is one page's extracted text, keyed 1-indexed as stored in
// FilePage.
type ContentPage struct {
	Page int
	Text string
}

// Filters is the search filter tuple from spec.md §4.5.
type Filters struct {
	Query          string // term matched against item name/content; "" or whitespace-only matches nothing
	DocumentBoxes  []string
	FolderChildren []uuid.UUID // nil means unrestricted within the document boxes
	IncludeName    bool
	IncludeContent bool
	CreatedAtStart *time.Time
	CreatedAtEnd   *time.Time
	CreatedBy      *string
	Mime           *string // files only

	Limit       int
	Offset      int
	MaxPages    int
	PagesOffset int
}

// PageMatch is one ranked page hit within a File match, headlined with
// <em>…</em> around matched fragments.
type PageMatch struct {
	Page      int
	Rank      float64
	Headline  string
}

// Match is the per-item scoring breakdown a backend produces before rank
// fusion; RankedMatch.Rank is computed from these fields by Rank().
type Match struct {
	ItemID           uuid.UUID
	ItemType         ItemType
	DocumentBox      string
	FolderID         uuid.UUID
	Name             string
	NameMatchTsvRank float64
	NameMatch        bool
	ContentMatch     bool
	ContentRank      float64
	TotalHits        int
	PageMatches      []PageMatch
	CreatedAt        time.Time
	CreatedBy        string
	Mime             string
}

// RankedMatch is a Match plus its final fused rank, as returned to callers.
type RankedMatch struct {
	Match
	Rank float64
}

// Rank implements the fusion formula from spec.md §4.5 exactly:
//
//	rank = name_match_tsv_rank + content_rank
//	     + (1.0 if name_match)
//	     + (1.0 if item=Link and content_match)
func Rank(m Match) float64 {
	rank := m.NameMatchTsvRank + m.ContentRank
	if m.NameMatch {
		rank += 1.0
	}
	if m.ItemType == ItemLink && m.ContentMatch {
		rank += 1.0
	}
	return rank
}

// PageRank implements the within-file page ranking: ts_rank(content) plus
// an ILIKE boost, used by both backends to order PageMatches.
func PageRank(tsRank float64, ilikeMatch bool) float64 {
	if ilikeMatch {
		return tsRank + 1.0
	}
	return tsRank
}

// Headline wraps the first match of needle in haystack with <em>…</em>,
// case-insensitively. A real deployment would use ts_headline (Postgres
// backend) or the search engine's native highlighter (Typesense
// backend); this is the shared fallback used by tests and by any backend
// that does not supply its own headline.
func Headline(haystack, needle string) string {
	if needle == "" {
		return haystack
	}
	lowerHay := strings.ToLower(haystack)
	lowerNeedle := strings.ToLower(needle)
	idx := strings.Index(lowerHay, lowerNeedle)
	if idx < 0 {
		return haystack
	}
	end := idx + len(needle)
	return haystack[:idx] + "<em>" + haystack[idx:end] + "</em>" + haystack[end:]
}

// Page is a paginated, ranked result set plus the unpaginated total.
type Page struct {
	Matches []RankedMatch
	Total   int
}

// Backend is the interface both the database-resident and external
// search implementations satisfy.
type Backend interface {
	Index(doc IndexDoc) error
	Delete(itemID uuid.UUID, itemType ItemType) error
	Query(filters Filters) (Page, error)
}
