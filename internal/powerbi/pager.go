package powerbi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetAll fetches path and follows @odata.nextLink until the listing is
// exhausted or maxPages pages were read. A failure on any page fails the
// whole listing; partially read pages are discarded.
func (c *Client) GetAll(ctx context.Context, path string, query url.Values, maxPages int) ([]Object, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	var all []Object
	next := c.resolve(path, query)
	for page := 0; next != "" && page < maxPages; page++ {
		body, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		items, nextLink, err := parsePage(body)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page+1, err)
		}
		all = append(all, items...)
		next = nextLink
	}
	return all, nil
}
