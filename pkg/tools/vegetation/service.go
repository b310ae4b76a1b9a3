package vegetation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/geocode"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/catalog"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/render"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/statistics"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
)

// DefaultMaxCloudCover is the findScenes threshold, in percent, used when the
// model does not pass one.
const DefaultMaxCloudCover = 20.0

// ImagePlaceholder replaces the data URL in the renderImage result the model
// sees. The full image travels to the caller separately.
const ImagePlaceholder = "[image delivered to the user]"

// Geocoder resolves place names. A nil place means no match.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (*geocode.Place, error)
}

// SceneFinder picks the best scene for a query. A nil scene means no coverage.
type SceneFinder interface {
	FindBest(ctx context.Context, q catalog.Query) (*catalog.Scene, error)
}

// StatsComputer computes index statistics for one day.
type StatsComputer interface {
	Compute(ctx context.Context, bbox geo.BoundingBox, day time.Time) (*statistics.Stats, error)
}

// Renderer renders one day as a PNG.
type Renderer interface {
	Render(ctx context.Context, bbox geo.BoundingBox, day time.Time, mode render.Mode) (*render.Image, error)
}

// Providers bundles the clients the tools run against.
type Providers struct {
	Geocoder   Geocoder
	Catalog    SceneFinder
	Statistics StatsComputer
	Renderer   Renderer
}

// Service executes vegetation tool calls.
type Service struct {
	providers     Providers
	maxCloudCover float64
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMaxCloudCover sets the default findScenes threshold.
func WithMaxCloudCover(pct float64) Option {
	return func(s *Service) {
		if pct > 0 {
			s.maxCloudCover = pct
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(p Providers, opts ...Option) *Service {
	s := &Service{
		providers:     p,
		maxCloudCover: DefaultMaxCloudCover,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxCloudCover returns the default findScenes threshold.
func (s *Service) MaxCloudCover() float64 { return s.maxCloudCover }

// LocateResult is the successful locate result.
type LocateResult struct {
	DisplayName string    `json:"displayName"`
	BBox        []float64 `json:"bbox"`
	PlaceID     string    `json:"placeId"`
}

// SceneResult is the findScenes result. Found is false when no scene
// qualifies, in which case only Message is set.
type SceneResult struct {
	Found      bool     `json:"found"`
	ID         string   `json:"id,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Date       string   `json:"date,omitempty"`
	CloudCover *float64 `json:"cloudCover,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// ImageResult is the renderImage result.
type ImageResult struct {
	Success      bool   `json:"success"`
	ImageDataURL string `json:"imageDataUrl"`
	Message      string `json:"message"`
}

// ErrorResult carries a provider or not-found failure back to the model.
type ErrorResult struct {
	Error string `json:"error"`
}

// Execute runs a parsed call. It does not fail: provider errors and
// not-found conditions come back as results the model can read.
func (s *Service) Execute(ctx context.Context, call Call) toolbox.Output {
	start := time.Now()

	out, failure := s.execute(ctx, call)

	level := slog.LevelDebug
	if failure != nil {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "tool executed",
		"tool", call.ToolName(),
		"duration", time.Since(start),
		"error", failure,
	)

	return out
}

func (s *Service) execute(ctx context.Context, call Call) (toolbox.Output, error) {
	switch c := call.(type) {
	case LocateCall:
		return s.locate(ctx, c)
	case FindScenesCall:
		return s.findScenes(ctx, c)
	case ComputeStatsCall:
		return s.computeStats(ctx, c)
	case RenderImageCall:
		return s.renderImage(ctx, c)
	default:
		err := fmt.Errorf("unsupported call %T", call)
		return failed(err.Error()), err
	}
}

func (s *Service) locate(ctx context.Context, c LocateCall) (toolbox.Output, error) {
	place, err := s.providers.Geocoder.Lookup(ctx, c.Query)
	if err != nil {
		return failed(err.Error()), err
	}
	if place == nil {
		return failed("Location not found: " + c.Query), nil
	}

	return encode(LocateResult{
		DisplayName: place.DisplayName,
		BBox:        place.BBox.Slice(),
		PlaceID:     place.PlaceID,
	}), nil
}

func (s *Service) findScenes(ctx context.Context, c FindScenesCall) (toolbox.Output, error) {
	threshold := c.MaxCloudCover
	if threshold == 0 {
		threshold = s.maxCloudCover
	}

	scene, err := s.providers.Catalog.FindBest(ctx, catalog.Query{
		BBox:          c.BBox,
		Range:         c.Range,
		MaxCloudCover: threshold,
	})
	if err != nil {
		return failed(err.Error()), err
	}

	if scene == nil {
		return encode(SceneResult{
			Found: false,
			Message: fmt.Sprintf("No scenes with cloud cover below %g%% between %s and %s.",
				threshold, geo.FormatDate(c.Range.From), geo.FormatDate(c.Range.To)),
		}), nil
	}

	return encode(SceneResult{
		Found:      true,
		ID:         scene.ID,
		Timestamp:  scene.Timestamp.Format(time.RFC3339),
		Date:       geo.FormatDate(scene.Timestamp),
		CloudCover: scene.CloudCover,
	}), nil
}

func (s *Service) computeStats(ctx context.Context, c ComputeStatsCall) (toolbox.Output, error) {
	stats, err := s.providers.Statistics.Compute(ctx, c.BBox, c.Date)
	if errors.Is(err, statistics.ErrNoData) {
		return failed(fmt.Sprintf("No valid pixels on %s; the area may be cloud covered or outside the scene.", geo.FormatDate(c.Date))), err
	}
	if err != nil {
		return failed(err.Error()), err
	}

	return encode(stats), nil
}

func (s *Service) renderImage(ctx context.Context, c RenderImageCall) (toolbox.Output, error) {
	img, err := s.providers.Renderer.Render(ctx, c.BBox, c.Date, c.Mode)
	if err != nil {
		return failed(err.Error()), err
	}

	full := ImageResult{
		Success:      true,
		ImageDataURL: img.DataURL(),
		Message:      fmt.Sprintf("Rendered a %dx%d %s image for %s.", img.Width, img.Height, img.Mode, geo.FormatDate(c.Date)),
	}
	view := full
	view.ImageDataURL = ImagePlaceholder

	out := encode(view)
	out.Payload = mustJSON(full)
	return out, nil
}

// ModelView rewrites a stored tool result into what the model should see.
// Only renderImage results change: their data URL is replaced by
// ImagePlaceholder.
func ModelView(toolName string, result json.RawMessage) string {
	if toolName != RenderImage {
		return string(result)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(result, &obj); err != nil {
		return string(result)
	}
	if _, ok := obj["imageDataUrl"]; !ok {
		return string(result)
	}
	obj["imageDataUrl"] = mustJSON(ImagePlaceholder)
	return string(mustJSON(obj))
}

// ImageURL returns the data URL carried by a successful renderImage result.
func ImageURL(tr content.ToolResult) (string, bool) {
	if tr.Name != RenderImage || tr.IsError {
		return "", false
	}

	var res ImageResult
	if err := json.Unmarshal(tr.Full(), &res); err != nil || !res.Success || res.ImageDataURL == ImagePlaceholder {
		return "", false
	}
	return res.ImageDataURL, res.ImageDataURL != ""
}

func failed(msg string) toolbox.Output {
	return encode(ErrorResult{Error: msg})
}

func encode(v any) toolbox.Output {
	return toolbox.Output{Content: string(mustJSON(v))}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(ErrorResult{Error: "encode result: " + err.Error()})
	}
	return b
}
