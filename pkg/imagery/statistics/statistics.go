// Package statistics computes vegetation-index statistics over a polygon for
// a single day using the imagery provider's Statistical API.
package statistics

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"

	"github.com/paulmach/orb/geojson"
)

const statisticsPath = "/api/v1/statistics"

// resolution is the long side, in pixels, of the grid statistics are sampled on.
const resolution = 512

//go:embed ndvi.js
var ndviEvalscript string

// ErrNoData is returned when the provider has no valid pixels for the day.
var ErrNoData = errors.New("statistics: no valid pixels for the requested date")

// Stats are aggregate index values over a polygon for one day.
type Stats struct {
	Mean        float64 `json:"mean"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	StDev       float64 `json:"stDev"`
	SampleCount *int64  `json:"sampleCount,omitempty"`
	NoDataCount *int64  `json:"noDataCount,omitempty"`
}

// Client queries the Statistical API.
type Client struct {
	http       *httpclient.Client
	collection string
}

// New creates a Client over an authenticated http client.
func New(hc *httpclient.Client, collection string) *Client {
	if collection == "" {
		collection = "sentinel-2-l2a"
	}
	return &Client{http: hc, collection: collection}
}

type request struct {
	Input struct {
		Bounds struct {
			Geometry   *geojson.Geometry `json:"geometry"`
			Properties map[string]string `json:"properties"`
		} `json:"bounds"`
		Data []dataSource `json:"data"`
	} `json:"input"`
	Aggregation struct {
		TimeRange           timeRange         `json:"timeRange"`
		AggregationInterval map[string]string `json:"aggregationInterval"`
		Evalscript          string            `json:"evalscript"`
		Width               int               `json:"width"`
		Height              int               `json:"height"`
	} `json:"aggregation"`
}

type dataSource struct {
	Type string `json:"type"`
}

type timeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type response struct {
	Data []struct {
		Outputs map[string]struct {
			Bands map[string]struct {
				Stats rawStats `json:"stats"`
			} `json:"bands"`
		} `json:"outputs"`
		Error *struct {
			Type string `json:"type"`
		} `json:"error"`
	} `json:"data"`
}

type rawStats struct {
	Min         number `json:"min"`
	Max         number `json:"max"`
	Mean        number `json:"mean"`
	StDev       number `json:"stDev"`
	SampleCount *int64 `json:"sampleCount"`
	NoDataCount *int64 `json:"noDataCount"`
}

// Compute returns statistics over the box polygon for the given day.
func (c *Client) Compute(ctx context.Context, bbox geo.BoundingBox, day time.Time) (*Stats, error) {
	if err := bbox.Validate(); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}

	from, to := geo.SingleDay(day).Interval()

	var req request
	req.Input.Bounds.Geometry = bbox.GeoJSON()
	req.Input.Bounds.Properties = map[string]string{"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84"}
	req.Input.Data = []dataSource{{Type: c.collection}}
	req.Aggregation.TimeRange = timeRange{From: from.Format(time.RFC3339), To: to.Format(time.RFC3339)}
	req.Aggregation.AggregationInterval = map[string]string{"of": "P1D"}
	req.Aggregation.Evalscript = ndviEvalscript
	req.Aggregation.Width, req.Aggregation.Height = bbox.PixelSize(resolution)

	var resp response
	if err := c.http.PostJSON(ctx, statisticsPath, req, &resp); err != nil {
		return nil, err
	}

	return extract(resp)
}

// extract reads the "default" output (else the first) and its "B0" band
// (else the first) from the first interval.
func extract(resp response) (*Stats, error) {
	if len(resp.Data) == 0 {
		return nil, ErrNoData
	}

	interval := resp.Data[0]
	if interval.Error != nil {
		return nil, &httpclient.UpstreamError{Service: "statistics", Message: "interval failed: " + interval.Error.Type}
	}

	output, ok := interval.Outputs["default"]
	if !ok {
		key, found := firstKey(interval.Outputs)
		if !found {
			return nil, malformed("response has no outputs")
		}
		output = interval.Outputs[key]
	}

	band, ok := output.Bands["B0"]
	if !ok {
		key, found := firstKey(output.Bands)
		if !found {
			return nil, malformed("output has no bands")
		}
		band = output.Bands[key]
	}

	raw := band.Stats
	if raw.SampleCount != nil && raw.NoDataCount != nil && *raw.SampleCount <= *raw.NoDataCount {
		return nil, ErrNoData
	}
	for _, v := range []number{raw.Mean, raw.Min, raw.Max, raw.StDev} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, ErrNoData
		}
	}

	return &Stats{
		Mean:        float64(raw.Mean),
		Min:         float64(raw.Min),
		Max:         float64(raw.Max),
		StDev:       float64(raw.StDev),
		SampleCount: raw.SampleCount,
		NoDataCount: raw.NoDataCount,
	}, nil
}

func firstKey[V any](m map[string]V) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys[0], true
}

func malformed(msg string) error {
	return &httpclient.UpstreamError{Service: "statistics", Message: "malformed response: " + msg}
}

// number decodes JSON numbers as well as the "NaN" and "Infinity" strings the
// provider emits for empty aggregates.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	switch s {
	case "null", "NaN", "":
		*n = number(math.NaN())
		return nil
	case "Infinity":
		*n = number(math.Inf(1))
		return nil
	case "-Infinity":
		*n = number(math.Inf(-1))
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	*n = number(f)
	return nil
}

var _ json.Unmarshaler = (*number)(nil)
