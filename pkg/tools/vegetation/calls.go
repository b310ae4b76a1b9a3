package vegetation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/render"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
)

// Tool names as declared to the model.
const (
	Locate       = "locate"
	FindScenes   = "findScenes"
	ComputeStats = "computeStats"
	RenderImage  = "renderImage"
)

// Call is one parsed, validated tool invocation. The set of implementations
// is closed: LocateCall, FindScenesCall, ComputeStatsCall and RenderImageCall.
type Call interface {
	ToolName() string
	sealed()
}

// LocateCall resolves a place name.
type LocateCall struct {
	Query string
}

// FindScenesCall searches the catalog. MaxCloudCover is zero when the model
// did not set it.
type FindScenesCall struct {
	BBox          geo.BoundingBox
	Range         geo.DateRange
	MaxCloudCover float64
}

// ComputeStatsCall computes index statistics for one day.
type ComputeStatsCall struct {
	BBox geo.BoundingBox
	Date time.Time
}

// RenderImageCall renders an image for one day.
type RenderImageCall struct {
	BBox geo.BoundingBox
	Date time.Time
	Mode render.Mode
}

func (LocateCall) ToolName() string       { return Locate }
func (FindScenesCall) ToolName() string   { return FindScenes }
func (ComputeStatsCall) ToolName() string { return ComputeStats }
func (RenderImageCall) ToolName() string  { return RenderImage }

func (LocateCall) sealed()       {}
func (FindScenesCall) sealed()   {}
func (ComputeStatsCall) sealed() {}
func (RenderImageCall) sealed()  {}

// Parse validates raw arguments for the named tool. Any shape problem is
// returned as a *toolbox.ValidationError listing every problem found.
func Parse(name string, raw json.RawMessage) (Call, error) {
	p := newParser(name, raw)
	if p.obj == nil {
		return nil, p.verr
	}

	var call Call
	switch name {
	case Locate:
		q := strings.TrimSpace(p.str("query", true))
		if q == "" && p.has("query") {
			p.fail("query: must not be empty")
		}
		call = LocateCall{Query: q}

	case FindScenes:
		c := FindScenesCall{BBox: p.bbox("bbox")}
		c.Range = p.dateRange("dateRange")
		if p.has("maxCloudCover") {
			cc, ok := p.num("maxCloudCover")
			if ok && (cc <= 0 || cc > 100) {
				p.fail("maxCloudCover: must be in (0, 100]")
			}
			c.MaxCloudCover = cc
		}
		call = c

	case ComputeStats:
		call = ComputeStatsCall{BBox: p.bbox("bbox"), Date: p.date("date")}

	case RenderImage:
		c := RenderImageCall{BBox: p.bbox("bbox"), Date: p.date("date")}
		mode, err := render.ParseMode(p.str("mode", false))
		if err != nil {
			p.fail(`mode: must be "health-index" or "true-color"`)
		}
		c.Mode = mode
		call = c

	default:
		p.fail("unknown tool")
	}

	if err := p.verr.Err(); err != nil {
		return nil, err
	}
	return call, nil
}

type parser struct {
	obj  map[string]json.RawMessage
	verr *toolbox.ValidationError
}

func newParser(tool string, raw json.RawMessage) *parser {
	p := &parser{verr: &toolbox.ValidationError{Tool: tool}}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}
	if trimmed[0] != '{' {
		p.fail("arguments: expected a JSON object")
		return p
	}
	if err := json.Unmarshal(trimmed, &p.obj); err != nil {
		p.fail("arguments: " + err.Error())
		p.obj = nil
	}

	return p
}

func (p *parser) fail(problem string) { p.verr.Add(problem) }

func (p *parser) has(key string) bool {
	v, ok := p.obj[key]
	return ok && string(bytes.TrimSpace(v)) != "null"
}

func (p *parser) str(key string, required bool) string {
	if !p.has(key) {
		if required {
			p.fail(key + ": required")
		}
		return ""
	}

	var s string
	if err := json.Unmarshal(p.obj[key], &s); err != nil {
		p.fail(key + ": expected a string")
		return ""
	}
	return s
}

func (p *parser) num(key string) (float64, bool) {
	f, ok := number(p.obj[key])
	if !ok {
		p.fail(key + ": expected a finite number")
	}
	return f, ok
}

func (p *parser) bbox(key string) geo.BoundingBox {
	if !p.has(key) {
		p.fail(key + ": required")
		return geo.BoundingBox{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(p.obj[key], &items); err != nil {
		p.fail(key + ": expected an array of 4 numbers [minLon, minLat, maxLon, maxLat]")
		return geo.BoundingBox{}
	}
	if len(items) != 4 {
		p.fail(fmt.Sprintf("%s: expected 4 numbers [minLon, minLat, maxLon, maxLat], got %d", key, len(items)))
		return geo.BoundingBox{}
	}

	var b geo.BoundingBox
	for i, item := range items {
		f, ok := number(item)
		if !ok {
			p.fail(fmt.Sprintf("%s[%d]: expected a finite number", key, i))
			return geo.BoundingBox{}
		}
		b[i] = f
	}

	if err := b.Validate(); err != nil {
		p.fail(key + ": " + strings.TrimPrefix(err.Error(), "geo: "))
		return geo.BoundingBox{}
	}
	return b
}

func (p *parser) date(key string) time.Time {
	s := p.str(key, true)
	if s == "" {
		return time.Time{}
	}

	d, err := geo.ParseDate(s)
	if err != nil {
		p.fail(key + ": expected YYYY-MM-DD")
		return time.Time{}
	}
	return d
}

func (p *parser) dateRange(key string) geo.DateRange {
	if !p.has(key) {
		p.fail(key + ": required")
		return geo.DateRange{}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(p.obj[key], &obj); err != nil {
		p.fail(key + `: expected an object {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"}`)
		return geo.DateRange{}
	}

	sub := &parser{obj: obj, verr: &toolbox.ValidationError{}}
	r := geo.DateRange{From: sub.date("from"), To: sub.date("to")}
	for _, problem := range sub.verr.Problems {
		p.fail(key + "." + problem)
	}
	if len(sub.verr.Problems) > 0 {
		return geo.DateRange{}
	}

	if err := r.Validate(); err != nil {
		p.fail(key + ": from must not be after to")
		return geo.DateRange{}
	}
	return r
}

// number accepts JSON numbers only; numeric strings are rejected.
func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
