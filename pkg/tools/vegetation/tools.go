package vegetation

import (
	"context"
	"encoding/json"

	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"
)

const bboxSchema = `{
  "type": "array",
  "description": "Bounding box [minLon, minLat, maxLon, maxLat] in WGS84 degrees.",
  "items": {"type": "number"},
  "minItems": 4,
  "maxItems": 4
}`

const dateSchema = `{
  "type": "string",
  "description": "Capture date YYYY-MM-DD. Must be the date of a scene returned by findScenes."
}`

var declarations = []struct {
	name        string
	description string
	schema      string
}{
	{
		name: Locate,
		description: "Resolve a place name (city, county, region, park, country) to a bounding box. " +
			"Call this first whenever the user names a place instead of giving coordinates.",
		schema: `{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Free-text place name, e.g. \"Iowa\" or \"Central Valley, California\"."}
  },
  "required": ["query"]
}`,
	},
	{
		name: FindScenes,
		description: "Search the Sentinel-2 catalog for the most recent low-cloud scene over a bounding box within a date range. " +
			"Use a generous range (several weeks or months). Returns found:false when nothing qualifies.",
		schema: `{
  "type": "object",
  "properties": {
    "bbox": ` + bboxSchema + `,
    "dateRange": {
      "type": "object",
      "properties": {
        "from": {"type": "string", "description": "Start date YYYY-MM-DD, inclusive."},
        "to": {"type": "string", "description": "End date YYYY-MM-DD, inclusive."}
      },
      "required": ["from", "to"]
    },
    "maxCloudCover": {"type": "number", "description": "Maximum cloud cover percent (0-100]. Defaults to 20."}
  },
  "required": ["bbox", "dateRange"]
}`,
	},
	{
		name: ComputeStats,
		description: "Compute NDVI vegetation-health statistics (mean, min, max, standard deviation) over a bounding box for one capture date. " +
			"Only call with a date returned by findScenes.",
		schema: `{
  "type": "object",
  "properties": {
    "bbox": ` + bboxSchema + `,
    "date": ` + dateSchema + `
  },
  "required": ["bbox", "date"]
}`,
	},
	{
		name: RenderImage,
		description: "Render a PNG of a bounding box for one capture date, either as an NDVI health map or as true color. " +
			"The image is shown to the user directly. Only call with a date returned by findScenes.",
		schema: `{
  "type": "object",
  "properties": {
    "bbox": ` + bboxSchema + `,
    "date": ` + dateSchema + `,
    "mode": {"type": "string", "enum": ["health-index", "true-color"], "description": "Defaults to health-index."}
  },
  "required": ["bbox", "date"]
}`,
	},
}

// Tools returns the four tool declarations bound to s.
func (s *Service) Tools() []toolbox.Tool {
	tools := make([]toolbox.Tool, 0, len(declarations))
	for _, d := range declarations {
		tools = append(tools, toolbox.Tool{
			Name:        d.name,
			Description: d.description,
			InputSchema: json.RawMessage(d.schema),
			Handler:     s.handler(d.name),
		})
	}
	return tools
}

// ToolBox returns a ToolBox holding the four tools.
func (s *Service) ToolBox() *toolbox.ToolBox {
	tb := toolbox.New()
	tb.Register(s.Tools()...)
	return tb
}

func (s *Service) handler(name string) toolbox.Handler {
	return func(ctx context.Context, input json.RawMessage) (toolbox.Output, error) {
		call, err := Parse(name, input)
		if err != nil {
			return toolbox.Output{}, err
		}
		return s.Execute(ctx, call), nil
	}
}
