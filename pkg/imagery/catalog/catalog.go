// Package catalog searches the imagery provider's STAC catalog for scenes.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"
)

const (
	searchPath = "/api/v1/catalog/1.0.0/search"

	// DefaultCollection is the Sentinel-2 surface reflectance collection.
	DefaultCollection = "sentinel-2-l2a"
	// DefaultLimit caps how many features one search returns.
	DefaultLimit = 50
)

// Scene describes one capture.
type Scene struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	CloudCover *float64  `json:"cloudCover,omitempty"`
}

// Query selects scenes over a box and date range. Scenes at or above
// MaxCloudCover percent are excluded.
type Query struct {
	BBox          geo.BoundingBox
	Range         geo.DateRange
	MaxCloudCover float64
}

// Client searches the catalog.
type Client struct {
	http       *httpclient.Client
	collection string
	limit      int
}

// Option configures a Client.
type Option func(*Client)

// WithCollection overrides the searched collection.
func WithCollection(name string) Option {
	return func(c *Client) { c.collection = name }
}

// WithLimit overrides the per-search feature limit.
func WithLimit(n int) Option {
	return func(c *Client) { c.limit = n }
}

// New creates a Client over an authenticated http client.
func New(hc *httpclient.Client, opts ...Option) *Client {
	c := &Client{
		http:       hc,
		collection: DefaultCollection,
		limit:      DefaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	BBox        []float64 `json:"bbox"`
	Datetime    string    `json:"datetime"`
	Collections []string  `json:"collections"`
	Limit       int       `json:"limit"`
	Filter      string    `json:"filter,omitempty"`
	FilterLang  string    `json:"filter-lang,omitempty"`
}

type searchResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Datetime   string   `json:"datetime"`
			CloudCover *float64 `json:"eo:cloud_cover"`
		} `json:"properties"`
	} `json:"features"`
}

// Search returns the qualifying scenes, most recent first. An empty slice
// means no coverage and is not an error.
func (c *Client) Search(ctx context.Context, q Query) ([]Scene, error) {
	if err := q.BBox.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := q.Range.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	from, to := q.Range.Interval()
	req := searchRequest{
		BBox:        q.BBox.Slice(),
		Datetime:    from.Format(time.RFC3339) + "/" + to.Add(-time.Second).Format(time.RFC3339),
		Collections: []string{c.collection},
		Limit:       c.limit,
	}
	if q.MaxCloudCover > 0 {
		req.Filter = fmt.Sprintf("eo:cloud_cover < %g", q.MaxCloudCover)
		req.FilterLang = "cql2-text"
	}

	var resp searchResponse
	if err := c.http.PostJSON(ctx, searchPath, req, &resp); err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(resp.Features))
	for _, f := range resp.Features {
		ts, err := time.Parse(time.RFC3339Nano, f.Properties.Datetime)
		if err != nil {
			continue
		}
		cc := f.Properties.CloudCover
		if q.MaxCloudCover > 0 && cc != nil && *cc >= q.MaxCloudCover {
			continue
		}
		scenes = append(scenes, Scene{ID: f.ID, Timestamp: ts.UTC(), CloudCover: cc})
	}

	return SortRecent(scenes), nil
}

// FindBest returns the most recent qualifying scene, or nil when there is
// none.
func (c *Client) FindBest(ctx context.Context, q Query) (*Scene, error) {
	scenes, err := c.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, nil
	}
	return &scenes[0], nil
}

// SortRecent stable-sorts scenes by timestamp, most recent first. Scenes with
// equal timestamps keep their input order.
func SortRecent(scenes []Scene) []Scene {
	slices.SortStableFunc(scenes, func(a, b Scene) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})
	return scenes
}
