package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
)

// typesenseDoc is the flattened document shape indexed into Typesense,
// matching the IndexDoc shape from spec.md §4.5's "external backend"
// description: name/content fields fanned out with equivalent boosts.
type typesenseDoc struct {
	ID           string   `json:"id"`
	ItemType     string   `json:"item_type"`
	DocumentBox  string   `json:"document_box"`
	FolderID     string   `json:"folder_id"`
	Name         string   `json:"name"`
	Value        string   `json:"value"`
	ContentPages []string `json:"content_pages"`
	Mime         string   `json:"mime"`
	CreatedAtUTC int64    `json:"created_at"`
	CreatedBy    string   `json:"created_by"`
}

// TypesenseBackend implements Backend against an external Typesense
// collection, one collection per tenant (named by the tenant's
// os_index_name).
type TypesenseBackend struct {
	client     *typesense.Client
	collection string
}

// NewTypesenseBackend builds an external search Backend bound to one
// tenant's collection. Collection creation/schema management is an
// operational concern handled outside Core (see spec.md §6).
func NewTypesenseBackend(client *typesense.Client, collection string) *TypesenseBackend {
	return &TypesenseBackend{client: client, collection: collection}
}

func (b *TypesenseBackend) Index(doc IndexDoc) error {
	pages := make([]string, len(doc.ContentPages))
	for i, p := range doc.ContentPages {
		pages[i] = p.Text
	}

	tdoc := typesenseDoc{
		ID:           doc.ItemID.String(),
		ItemType:     string(doc.ItemType),
		DocumentBox:  doc.DocumentBox,
		FolderID:     doc.FolderID.String(),
		Name:         doc.Name,
		Value:        doc.Value,
		ContentPages: pages,
		Mime:         doc.Mime,
		CreatedAtUTC: doc.CreatedAt.Unix(),
		CreatedBy:    doc.CreatedBy,
	}

	_, err := b.client.Collection(b.collection).Documents().Upsert(context.Background(), tdoc)
	if err != nil {
		return fmt.Errorf("typesense index %s: %w", doc.ItemID, err)
	}
	return nil
}

func (b *TypesenseBackend) Delete(itemID uuid.UUID, itemType ItemType) error {
	_, err := b.client.Collection(b.collection).Document(itemID.String()).Delete(context.Background())
	if err != nil {
		return fmt.Errorf("typesense delete %s: %w", itemID, err)
	}
	return nil
}

func (b *TypesenseBackend) Query(filters Filters) (Page, error) {
	if len(filters.DocumentBoxes) == 0 {
		return Page{}, nil
	}
	query := strings.TrimSpace(filters.Query)
	// A whitespace-only query matches nothing, per spec.md §8.
	if query == "" {
		return Page{}, nil
	}

	filterParts := []string{
		fmt.Sprintf("document_box:[%s]", strings.Join(filters.DocumentBoxes, ",")),
	}
	if len(filters.FolderChildren) > 0 {
		ids := make([]string, len(filters.FolderChildren))
		for i, id := range filters.FolderChildren {
			ids[i] = id.String()
		}
		filterParts = append(filterParts, fmt.Sprintf("folder_id:[%s]", strings.Join(ids, ",")))
	}
	if filters.Mime != nil {
		filterParts = append(filterParts, fmt.Sprintf("mime:=%s", *filters.Mime))
	}
	if filters.CreatedBy != nil {
		filterParts = append(filterParts, fmt.Sprintf("created_by:=%s", *filters.CreatedBy))
	}
	if filters.CreatedAtStart != nil {
		filterParts = append(filterParts, fmt.Sprintf("created_at:>=%d", filters.CreatedAtStart.Unix()))
	}
	if filters.CreatedAtEnd != nil {
		filterParts = append(filterParts, fmt.Sprintf("created_at:<=%d", filters.CreatedAtEnd.Unix()))
	}

	var queryFields []string
	if filters.IncludeName {
		queryFields = append(queryFields, "name")
	}
	if filters.IncludeContent {
		queryFields = append(queryFields, "content_pages", "value")
	}
	if len(queryFields) == 0 {
		return Page{}, nil
	}
	queryBy := strings.Join(queryFields, ",")

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filters.Offset/limit + 1

	searchParams := &api.SearchCollectionParams{
		Q:        pointer.String(query),
		QueryBy:  pointer.String(queryBy),
		FilterBy: pointer.String(strings.Join(filterParts, " && ")),
		SortBy:   pointer.String("_text_match:desc,created_at:desc"),
		Page:     pointer.Int(page),
		PerPage:  pointer.Int(limit),
	}

	result, err := b.client.Collection(b.collection).Documents().Search(context.Background(), searchParams)
	if err != nil {
		return Page{}, fmt.Errorf("typesense query: %w", err)
	}

	var matches []RankedMatch
	if result.Hits != nil {
		for _, hit := range *result.Hits {
			match, err := hitToMatch(hit)
			if err != nil {
				continue
			}
			matches = append(matches, RankedMatch{Match: match, Rank: Rank(match)})
		}
	}

	total := len(matches)
	if result.Found != nil {
		total = *result.Found
	}

	return Page{Matches: matches, Total: total}, nil
}

// hitToMatch reconstructs a Match from one Typesense search hit,
// approximating name_match/content_match from which fields the
// highlighter reports as matched, per §4.5's "reconstructed from child
// matched tokens" note.
func hitToMatch(hit api.SearchResultHit) (Match, error) {
	if hit.Document == nil {
		return Match{}, fmt.Errorf("hit missing document")
	}
	doc := *hit.Document

	id, _ := uuid.Parse(fmt.Sprintf("%v", doc["id"]))
	folderID, _ := uuid.Parse(fmt.Sprintf("%v", doc["folder_id"]))
	createdAtUnix, _ := strconv.ParseInt(fmt.Sprintf("%v", doc["created_at"]), 10, 64)

	var textScore float64
	if hit.TextMatch != nil {
		textScore = float64(*hit.TextMatch)
	}

	nameMatch := false
	contentMatch := false
	if hit.Highlights != nil {
		for _, h := range *hit.Highlights {
			if h.Field != nil {
				switch *h.Field {
				case "name":
					nameMatch = true
				case "content_pages", "value":
					contentMatch = true
				}
			}
		}
	}

	itemType := ItemType(fmt.Sprintf("%v", doc["item_type"]))

	return Match{
		ItemID:           id,
		ItemType:         itemType,
		DocumentBox:      fmt.Sprintf("%v", doc["document_box"]),
		FolderID:         folderID,
		Name:             fmt.Sprintf("%v", doc["name"]),
		NameMatchTsvRank: textScore,
		NameMatch:        nameMatch,
		ContentMatch:     contentMatch,
		ContentRank:      textScore,
		CreatedAt:        time.Unix(createdAtUnix, 0).UTC(),
		CreatedBy:        fmt.Sprintf("%v", doc["created_by"]),
		Mime:             fmt.Sprintf("%v", doc["mime"]),
	}, nil
}
