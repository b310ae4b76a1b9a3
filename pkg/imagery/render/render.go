// Package render produces health-map and true-color PNG images through the
// imagery provider's Process API.
package render

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"
)

const (
	processPath = "/api/v1/process"

	// LongSide is the pixel length of the longer image edge.
	LongSide = 512
)

//go:embed evalscripts/*.js
var evalscripts embed.FS

// Mode selects what the image shows.
type Mode string

const (
	HealthIndex Mode = "health-index"
	TrueColor   Mode = "true-color"
)

// ParseMode validates a mode name. An empty name selects HealthIndex.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return HealthIndex, nil
	case HealthIndex, TrueColor:
		return m, nil
	default:
		return "", fmt.Errorf("render: unknown mode %q", s)
	}
}

func (m Mode) evalscript() (string, error) {
	b, err := evalscripts.ReadFile("evalscripts/" + string(m) + ".js")
	if err != nil {
		return "", fmt.Errorf("render: no evalscript for mode %q", m)
	}
	return string(b), nil
}

// Image is a rendered PNG.
type Image struct {
	PNG    []byte
	Width  int
	Height int
	Mode   Mode
}

// DataURL encodes the image as a base64 data URI.
func (i *Image) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(i.PNG)
}

// Client calls the Process API.
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

type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds struct {
		BBox       []float64         `json:"bbox"`
		Properties map[string]string `json:"properties"`
	} `json:"bounds"`
	Data []processData `json:"data"`
}

type processData struct {
	Type       string `json:"type"`
	DataFilter struct {
		TimeRange struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timeRange"`
		MosaickingOrder string `json:"mosaickingOrder"`
	} `json:"dataFilter"`
}

type processOutput struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Responses []processResponse `json:"responses"`
}

type processResponse struct {
	Identifier string `json:"identifier"`
	Format     struct {
		Type string `json:"type"`
	} `json:"format"`
}

// Render draws the box on the given day.
func (c *Client) Render(ctx context.Context, bbox geo.BoundingBox, day time.Time, mode Mode) (*Image, error) {
	if err := bbox.Validate(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	script, err := mode.evalscript()
	if err != nil {
		return nil, err
	}

	from, to := geo.SingleDay(day).Interval()
	width, height := bbox.PixelSize(LongSide)

	var req processRequest
	req.Input.Bounds.BBox = bbox.Slice()
	req.Input.Bounds.Properties = map[string]string{"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84"}

	data := processData{Type: c.collection}
	data.DataFilter.TimeRange.From = from.Format(time.RFC3339)
	data.DataFilter.TimeRange.To = to.Format(time.RFC3339)
	data.DataFilter.MosaickingOrder = "leastCC"
	req.Input.Data = []processData{data}

	resp := processResponse{Identifier: "default"}
	resp.Format.Type = "image/png"
	req.Output = processOutput{Width: width, Height: height, Responses: []processResponse{resp}}
	req.Evalscript = script

	png, err := c.http.PostForBytes(ctx, processPath, req, "image/png")
	if err != nil {
		return nil, err
	}

	return &Image{PNG: png, Width: width, Height: height, Mode: mode}, nil
}
