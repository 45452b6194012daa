// Package linkmeta implements §4.7: a TTL-cached lookup of Link URL
// metadata, backed by the resolved_link_metadata table and an external
// scraper client. The scraper itself is an external interface only per
// spec.md — this package defines the contract and the cache around it,
// never a scraping implementation.
package linkmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/docboxhq/docbox/internal/docbox/model"
	"github.com/docboxhq/docbox/internal/pkg/apperrors"
	"github.com/docboxhq/docbox/internal/pkg/database"
	"github.com/docboxhq/docbox/internal/pkg/rpcclient"
)

// ScrapedMetadata is the payload spec.md §4.7 defines the scraper as
// returning for a URL.
type ScrapedMetadata struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Favicon     *string   `json:"favicon,omitempty"`
	Image       *string   `json:"image,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ScraperClient is the external collaborator named in spec.md §4.7.
// Docbox Core calls it with a URL and caches whatever comes back; the
// crawling/parsing logic itself lives entirely on the other side of this
// interface, per the spec's explicit "external interface only" note for
// the scraper subsystem.
type ScraperClient interface {
	Scrape(ctx context.Context, url string) (ScrapedMetadata, error)
}

// httpScraperClient issues the "GET url → metadata" call from spec.md
// §6 against the configured scraper service, over the shared retrying
// client also used for the PDF/office processors.
type httpScraperClient struct {
	client *rpcclient.Client
}

// NewHTTPScraperClient builds a ScraperClient over the scraper RPC
// endpoint configured in conf.RPCConfig's Scraper section.
func NewHTTPScraperClient(client *rpcclient.Client) ScraperClient {
	return &httpScraperClient{client: client}
}

func (c *httpScraperClient) Scrape(ctx context.Context, target string) (ScrapedMetadata, error) {
	var out ScrapedMetadata
	path := "/scrape?url=" + url.QueryEscape(target)
	body, err := c.client.Get(ctx, path)
	if err != nil {
		return ScrapedMetadata{}, fmt.Errorf("scrape %s: %w", target, err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return ScrapedMetadata{}, fmt.Errorf("decode scrape response for %s: %w", target, err)
	}
	return out, nil
}

// Resolver caches ScraperClient results in resolved_link_metadata,
// keyed by URL, honoring each entry's own expires_at.
type Resolver struct {
	db      *database.DB
	scraper ScraperClient
}

// NewResolver builds a Resolver over a tenant-scoped database connection.
func NewResolver(db *database.DB, scraper ScraperClient) *Resolver {
	return &Resolver{db: db, scraper: scraper}
}

// Resolve returns cached metadata for url if it hasn't expired, else
// calls the scraper, persists the fresh result, and returns it. A
// scraper failure with a stale cached row still returns the stale row
// rather than erroring, since some metadata beats none for a link
// preview.
func (r *Resolver) Resolve(ctx context.Context, url string) (model.ResolvedLinkMetadata, error) {
	var row model.ResolvedLinkMetadata
	err := r.db.WithContext(ctx).Where("url = ?", url).First(&row).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ResolvedLinkMetadata{}, fmt.Errorf("lookup resolved link metadata: %w", err)
	}

	if found && time.Now().Before(row.ExpiresAt) {
		return row, nil
	}

	scraped, scrapeErr := r.scraper.Scrape(ctx, url)
	if scrapeErr != nil {
		if found {
			return row, nil
		}
		return model.ResolvedLinkMetadata{}, apperrors.Wrap(scrapeErr, apperrors.ErrProcessingFailure, "scrape link metadata")
	}

	fresh := model.ResolvedLinkMetadata{
		URL: url, Title: scraped.Title, Description: scraped.Description,
		Favicon: scraped.Favicon, Image: scraped.Image, ExpiresAt: scraped.ExpiresAt,
	}

	err = r.db.WithContext(ctx).Save(&fresh).Error
	if err != nil {
		return model.ResolvedLinkMetadata{}, fmt.Errorf("persist resolved link metadata: %w", err)
	}

	return fresh, nil
}

// Invalidate deletes a cached row, forcing the next Resolve to re-scrape.
func (r *Resolver) Invalidate(ctx context.Context, url string) error {
	if err := r.db.WithContext(ctx).Delete(&model.ResolvedLinkMetadata{}, "url = ?", url).Error; err != nil {
		return fmt.Errorf("invalidate resolved link metadata: %w", err)
	}
	return nil
}
