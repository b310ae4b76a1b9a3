package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DateLayout is the calendar date format used on every boundary.
const DateLayout = "2006-01-02"

// ErrInvalidBBox is wrapped by every bounding box validation failure.
var ErrInvalidBBox = errors.New("geo: invalid bounding box")

// BoundingBox is an axis-aligned rectangle in WGS84 degrees ordered as
// [minLon, minLat, maxLon, maxLat]. It is a value type.
type BoundingBox [4]float64

// NewBoundingBox builds a BoundingBox and validates it.
func NewBoundingBox(minLon, minLat, maxLon, maxLat float64) (BoundingBox, error) {
	b := BoundingBox{minLon, minLat, maxLon, maxLat}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

func (b BoundingBox) MinLon() float64 { return b[0] }
func (b BoundingBox) MinLat() float64 { return b[1] }
func (b BoundingBox) MaxLon() float64 { return b[2] }
func (b BoundingBox) MaxLat() float64 { return b[3] }

// Width returns the longitudinal extent in degrees.
func (b BoundingBox) Width() float64 { return b[2] - b[0] }

// Height returns the latitudinal extent in degrees.
func (b BoundingBox) Height() float64 { return b[3] - b[1] }

// Validate checks ordering, ranges and finiteness.
func (b BoundingBox) Validate() error {
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinate %d is not finite", ErrInvalidBBox, i)
		}
	}

	switch {
	case b[0] < -180 || b[2] > 180:
		return fmt.Errorf("%w: longitude outside [-180, 180]", ErrInvalidBBox)
	case b[1] < -90 || b[3] > 90:
		return fmt.Errorf("%w: latitude outside [-90, 90]", ErrInvalidBBox)
	case b[0] > b[2]:
		return fmt.Errorf("%w: minLon %g > maxLon %g", ErrInvalidBBox, b[0], b[2])
	case b[1] > b[3]:
		return fmt.Errorf("%w: minLat %g > maxLat %g", ErrInvalidBBox, b[1], b[3])
	}

	return nil
}

// Slice returns the box as a plain slice, the shape JSON payloads expect.
func (b BoundingBox) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// Bound converts the box to an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b[0], b[1]},
		Max: orb.Point{b[2], b[3]},
	}
}

// String formats the box as "minLon,minLat,maxLon,maxLat".
func (b BoundingBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b[0], b[1], b[2], b[3])
}

// PixelSize returns output dimensions matching the box aspect ratio with the
// longer side set to long pixels. Degenerate boxes yield a square.
func (b BoundingBox) PixelSize(long int) (width, height int) {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return long, long
	}
	if w >= h {
		return long, max(1, int(math.Round(float64(long)*h/w)))
	}
	return max(1, int(math.Round(float64(long)*w/h))), long
}

// PolygonFromBBox returns the closed ring of the box's four corners,
// counter-clockwise from the south-west corner: SW, SE, NE, NW, SW.
func PolygonFromBBox(b BoundingBox) orb.Polygon {
	sw := orb.Point{b[0], b[1]}
	return orb.Polygon{orb.Ring{
		sw,
		{b[2], b[1]},
		{b[2], b[3]},
		{b[0], b[3]},
		sw,
	}}
}

// GeoJSON returns the box polygon as a GeoJSON geometry.
func (b BoundingBox) GeoJSON() *geojson.Geometry {
	return geojson.NewGeometry(PolygonFromBBox(b))
}

// ParseDate parses a calendar date. Full RFC 3339 timestamps are accepted and
// truncated to their UTC calendar day so a capture timestamp returned by a
// catalog search can be used verbatim.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("geo: empty date")
	}

	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("geo: date %q is not YYYY-MM-DD or RFC 3339", s)
	}

	return Day(t), nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange parses both ends and checks From <= To.
func NewDateRange(from, to string) (DateRange, error) {
	f, err := ParseDate(from)
	if err != nil {
		return DateRange{}, err
	}

	t, err := ParseDate(to)
	if err != nil {
		return DateRange{}, err
	}

	r := DateRange{From: f, To: t}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}

	return r, nil
}

// Validate checks From <= To.
func (r DateRange) Validate() error {
	if r.From.After(r.To) {
		return fmt.Errorf("geo: date range from %s is after to %s", FormatDate(r.From), FormatDate(r.To))
	}
	return nil
}

// Interval returns the half-open instant interval [From 00:00, To+1 00:00)
// covering every day in the range.
func (r DateRange) Interval() (time.Time, time.Time) {
	return Day(r.From), Day(r.To).AddDate(0, 0, 1)
}

// SingleDay returns the range covering exactly the day of t.
func SingleDay(t time.Time) DateRange {
	d := Day(t)
	return DateRange{From: d, To: d}
}
