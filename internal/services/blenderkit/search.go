package blenderkit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
)

// DefaultPageSize matches the server's maximum page size for search.
const DefaultPageSize = 100

type searchPage struct {
	Count   int            `json:"count"`
	Next    string         `json:"next"`
	Results []assets.Asset `json:"results"`
}

// SearchOptions narrows a search request.
type SearchOptions struct {
	// Parameters become "+key:value" tokens in the query.
	Parameters map[string]string
	// MaxResults stops pagination early; zero means all pages.
	MaxResults int
	PageSize   int
}

// SearchAssets walks the paginated search endpoint and returns all matching
// assets with their full parameter dictionaries. Parameter tokens are
// emitted in sorted key order so request URLs are stable.
func (c *Client) SearchAssets(ctx context.Context, opts SearchOptions) ([]assets.Asset, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	keys := make([]string, 0, len(opts.Parameters))
	for key := range opts.Parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var query strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&query, "+%s:%s", key, opts.Parameters[key])
	}
	requestURL := c.apiURL("/search/") +
		"?query=" + url.QueryEscape(query.String()) +
		fmt.Sprintf("&page_size=%d&dict_parameters=1", pageSize)

	var results []assets.Asset
	for requestURL != "" {
		var page searchPage
		if err := c.doJSON(ctx, "GET", requestURL, nil, &page); err != nil {
			return nil, fmt.Errorf("search assets: %w", err)
		}
		if c.logger != nil && len(results) == 0 {
			c.logger.Info("search started", "total", page.Count, "page_size", pageSize)
		}
		results = append(results, page.Results...)
		if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
			return results[:opts.MaxResults], nil
		}
		requestURL = page.Next
	}
	return results, nil
}

// GetAsset fetches a single asset by its base id. Returns the newest
// version of the asset.
func (c *Client) GetAsset(ctx context.Context, assetBaseID string) (assets.Asset, error) {
	found, err := c.SearchAssets(ctx, SearchOptions{
		Parameters: map[string]string{"asset_base_id": assetBaseID},
		MaxResults: 1,
	})
	if err != nil {
		return assets.Asset{}, err
	}
	if len(found) == 0 {
		return assets.Asset{}, fmt.Errorf("asset %s not found", assetBaseID)
	}
	return found[0], nil
}
