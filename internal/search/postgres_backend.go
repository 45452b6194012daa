package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docboxhq/docbox/internal/pkg/database"
)

// searchRow is the GORM-mapped row backing the database-resident search
// index. name_tsv and content_tsv are generated tsvector columns
// (`GENERATED ALWAYS AS (to_tsvector('english', name)) STORED`) created by
// migration, not by GORM; trigram indexes on name/content back the ILIKE
// substring matches. Content is denormalized per document rather than
// joined against docbox_file_pages at query time, so a page edit
// re-indexes the whole row (write-through, at-least-once per §4.5).
type searchRow struct {
	ItemID      uuid.UUID `gorm:"column:item_id;primaryKey"`
	ItemType    string    `gorm:"column:item_type;not null;index"`
	DocumentBox string    `gorm:"column:document_box;not null;index"`
	FolderID    uuid.UUID `gorm:"column:folder_id;index"`
	Name        string    `gorm:"column:name;not null"`
	Value       string    `gorm:"column:value"`
	Mime        string    `gorm:"column:mime"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	CreatedBy   string    `gorm:"column:created_by"`
}

func (searchRow) TableName() string { return "docbox_search_documents" }

// searchPageRow is one page of content for a File search document.
type searchPageRow struct {
	ItemID uuid.UUID `gorm:"column:item_id;primaryKey"`
	Page   int       `gorm:"column:page;primaryKey"`
	Text   string    `gorm:"column:text;not null"`
}

func (searchPageRow) TableName() string { return "docbox_search_document_pages" }

// PostgresBackend implements Backend against the tenant's own database.
// Query narrows candidates in SQL by document box, folder, creation time,
// creator and mime only; name and content matching and ranking run in
// process in matchRow, and no tsvector or trigram clause is issued.
type PostgresBackend struct {
	db *database.DB
}

// NewPostgresBackend builds a database-resident search Backend for one
// tenant connection.
func NewPostgresBackend(db *database.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Index(doc IndexDoc) error {
	row := searchRow{
		ItemID:      doc.ItemID,
		ItemType:    string(doc.ItemType),
		DocumentBox: doc.DocumentBox,
		FolderID:    doc.FolderID,
		Name:        doc.Name,
		Value:       doc.Value,
		Mime:        doc.Mime,
		CreatedAt:   doc.CreatedAt,
		CreatedBy:   doc.CreatedBy,
	}
	if err := b.db.Save(&row).Error; err != nil {
		return fmt.Errorf("index document %s: %w", doc.ItemID, err)
	}

	if err := b.db.Where("item_id = ?", doc.ItemID).Delete(&searchPageRow{}).Error; err != nil {
		return fmt.Errorf("clear document pages %s: %w", doc.ItemID, err)
	}
	if len(doc.ContentPages) > 0 {
		pages := make([]searchPageRow, len(doc.ContentPages))
		for i, p := range doc.ContentPages {
			pages[i] = searchPageRow{ItemID: doc.ItemID, Page: p.Page, Text: p.Text}
		}
		if err := b.db.Create(&pages).Error; err != nil {
			return fmt.Errorf("index document pages %s: %w", doc.ItemID, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Delete(itemID uuid.UUID, itemType ItemType) error {
	if err := b.db.Where("item_id = ? AND item_type = ?", itemID, string(itemType)).
		Delete(&searchRow{}).Error; err != nil {
		return fmt.Errorf("delete document %s: %w", itemID, err)
	}
	if err := b.db.Where("item_id = ?", itemID).Delete(&searchPageRow{}).Error; err != nil {
		return fmt.Errorf("delete document pages %s: %w", itemID, err)
	}
	return nil
}

func (b *PostgresBackend) Query(filters Filters) (Page, error) {
	if len(filters.DocumentBoxes) == 0 {
		return Page{}, nil
	}
	// A whitespace-only query matches nothing, per spec.md §8.
	if strings.TrimSpace(filters.Query) == "" {
		return Page{}, nil
	}

	query := b.db.Model(&searchRow{}).Where("document_box IN ?", filters.DocumentBoxes)
	if len(filters.FolderChildren) > 0 {
		query = query.Where("folder_id IN ?", filters.FolderChildren)
	}
	if filters.CreatedAtStart != nil {
		query = query.Where("created_at >= ?", *filters.CreatedAtStart)
	}
	if filters.CreatedAtEnd != nil {
		query = query.Where("created_at <= ?", *filters.CreatedAtEnd)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Mime != nil {
		query = query.Where("mime = ?", *filters.Mime)
	}

	var rows []searchRow
	if err := query.Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("query search documents: %w", err)
	}

	var matches []RankedMatch
	for _, row := range rows {
		match, ok, err := b.matchRow(row, filters)
		if err != nil {
			return Page{}, err
		}
		if !ok {
			continue
		}
		matches = append(matches, RankedMatch{Match: match, Rank: Rank(match)})
	}

	sortByRankThenCreatedAt(matches)
	total := len(matches)

	limit := filters.Limit
	offset := filters.Offset
	if limit <= 0 {
		limit = total
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return Page{Matches: matches[offset:end], Total: total}, nil
}

// matchRow derives Match fields for one candidate row in process:
// containsFold is a case-insensitive substring match standing in for
// `name ILIKE`, and tsRankApprox is an approximate stand-in for ts_rank.
func (b *PostgresBackend) matchRow(row searchRow, filters Filters) (Match, bool, error) {
	itemType := ItemType(row.ItemType)
	query := strings.TrimSpace(filters.Query)

	nameMatch := filters.IncludeName && query != "" && containsFold(row.Name, query)
	var nameMatchTsvRank float64
	if nameMatch {
		nameMatchTsvRank = tsRankApprox(row.Name, query)
	}

	var contentMatch bool
	var contentRank float64
	var pageMatches []PageMatch
	var totalHits int

	if itemType == ItemLink && filters.IncludeContent && query != "" && containsFold(row.Value, query) {
		contentMatch = true
		contentRank = tsRankApprox(row.Value, query)
	}

	if itemType == ItemFile && filters.IncludeContent && query != "" {
		var pages []searchPageRow
		if err := b.db.Where("item_id = ?", row.ItemID).Order("page asc").Find(&pages).Error; err != nil {
			return Match{}, false, fmt.Errorf("load document pages %s: %w", row.ItemID, err)
		}
		for _, p := range pages {
			if !containsFold(p.Text, query) {
				continue
			}
			rank := PageRank(tsRankApprox(p.Text, query), true)
			pageMatches = append(pageMatches, PageMatch{
				Page:     p.Page,
				Rank:     rank,
				Headline: Headline(p.Text, query),
			})
			totalHits++
		}
		if len(pageMatches) > 0 {
			contentMatch = true
			for _, pm := range pageMatches {
				if pm.Rank > contentRank {
					contentRank = pm.Rank
				}
			}
			sortPageMatches(pageMatches)
			if filters.MaxPages > 0 && len(pageMatches) > filters.PagesOffset+filters.MaxPages {
				pageMatches = pageMatches[filters.PagesOffset:min(len(pageMatches), filters.PagesOffset+filters.MaxPages)]
			}
		}
	}

	if !nameMatch && !contentMatch {
		return Match{}, false, nil
	}

	return Match{
		ItemID:           row.ItemID,
		ItemType:         itemType,
		DocumentBox:      row.DocumentBox,
		FolderID:         row.FolderID,
		Name:             row.Name,
		NameMatchTsvRank: nameMatchTsvRank,
		NameMatch:        nameMatch,
		ContentMatch:     contentMatch,
		ContentRank:      contentRank,
		TotalHits:        totalHits,
		PageMatches:      pageMatches,
		CreatedAt:        row.CreatedAt,
		CreatedBy:        row.CreatedBy,
		Mime:             row.Mime,
	}, true, nil
}

// tsRankApprox is a placeholder proportional score standing in for
// Postgres's ts_rank; kept deterministic and cheap for the in-process
// candidate pass in matchRow. It scores by how densely query occurs in
// text, so a short field with several hits outranks a long one with one.
func tsRankApprox(text, query string) float64 {
	if text == "" || query == "" {
		return 0
	}
	count := strings.Count(strings.ToLower(text), strings.ToLower(query))
	if count == 0 {
		return 0
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return float64(count) / float64(len(words))
}

// containsFold reports whether substr occurs in s, ignoring case, the
// in-process stand-in for a `name ILIKE '%term%'` clause.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortByRankThenCreatedAt(matches []RankedMatch) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			a, bm := matches[j-1], matches[j]
			if a.Rank > bm.Rank || (a.Rank == bm.Rank && a.CreatedAt.After(bm.CreatedAt)) {
				break
			}
			matches[j-1], matches[j] = matches[j], matches[j-1]
		}
	}
}

func sortPageMatches(pages []PageMatch) {
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0; j-- {
			a, b := pages[j-1], pages[j]
			if a.Rank > b.Rank || (a.Rank == b.Rank && a.Page < b.Page) {
				break
			}
			pages[j-1], pages[j] = pages[j], pages[j-1]
		}
	}
}
