// Package geocode resolves free-text place names to bounding boxes using a
// Nominatim-compatible search API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Place is a resolved location.
type Place struct {
	DisplayName string          `json:"displayName"`
	BBox        geo.BoundingBox `json:"bbox"`
	PlaceID     string          `json:"placeId"`
}

// Client queries the geocoder.
type Client struct {
	http *httpclient.Client
}

// New creates a Client. Nominatim's usage policy requires an identifying
// User-Agent, so callers should pass httpclient.WithUserAgent.
func New(baseURL string, opts ...httpclient.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New("geocoder", baseURL, opts...)}
}

type searchResult struct {
	PlaceID     json.RawMessage `json:"place_id"`
	DisplayName string          `json:"display_name"`
	BoundingBox []string        `json:"boundingbox"`
}

// Lookup returns the best match for query, or (nil, nil) when the geocoder
// has no match.
func (c *Client) Lookup(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("geocode: empty query")
	}

	params := url.Values{
		"q":      {query},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}

	var results []searchResult
	if err := c.http.GetJSON(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	r := results[0]
	bbox, err := normalizeBBox(r.BoundingBox)
	if err != nil {
		return nil, &httpclient.UpstreamError{Service: "geocoder", Message: "malformed bounding box", Err: err}
	}

	return &Place{
		DisplayName: r.DisplayName,
		BBox:        bbox,
		PlaceID:     strings.Trim(string(r.PlaceID), `"`),
	}, nil
}

// normalizeBBox converts the provider's [minLat, maxLat, minLon, maxLon]
// strings to a canonical box. Inverted pairs are swapped.
func normalizeBBox(raw []string) (geo.BoundingBox, error) {
	if len(raw) != 4 {
		return geo.BoundingBox{}, fmt.Errorf("expected 4 values, got %d", len(raw))
	}

	var v [4]float64
	for i, s := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return geo.BoundingBox{}, fmt.Errorf("value %d: %w", i, err)
		}
		v[i] = f
	}

	minLat, maxLat, minLon, maxLon := v[0], v[1], v[2], v[3]
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	if minLon > maxLon {
		minLon, maxLon = maxLon, minLon
	}

	return geo.NewBoundingBox(minLon, minLat, maxLon, maxLat)
}
