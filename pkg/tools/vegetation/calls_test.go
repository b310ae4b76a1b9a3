package vegetation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/render"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/toolbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	box := geo.BoundingBox{-96.6, 40.4, -90.1, 43.5}

	tests := []struct {
		name string
		tool string
		args string
		want Call
	}{
		{"locate", Locate, `{"query":" Iowa "}`, LocateCall{Query: "Iowa"}},
		{
			"findScenes", FindScenes,
			`{"bbox":[-96.6,40.4,-90.1,43.5],"dateRange":{"from":"2024-04-01","to":"2024-06-30"}}`,
			FindScenesCall{BBox: box, Range: geo.DateRange{
				From: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
			}},
		},
		{
			"findScenes with cloud cover", FindScenes,
			`{"bbox":[-96.6,40.4,-90.1,43.5],"dateRange":{"from":"2024-06-15","to":"2024-06-15"},"maxCloudCover":35}`,
			FindScenesCall{BBox: box, Range: geo.SingleDay(day), MaxCloudCover: 35},
		},
		{"computeStats", ComputeStats, `{"bbox":[-96.6,40.4,-90.1,43.5],"date":"2024-06-15"}`, ComputeStatsCall{BBox: box, Date: day}},
		{
			"computeStats with timestamp", ComputeStats,
			`{"bbox":[-96.6,40.4,-90.1,43.5],"date":"2024-06-15T17:04:21Z"}`,
			ComputeStatsCall{BBox: box, Date: day},
		},
		{"renderImage default mode", RenderImage, `{"bbox":[-96.6,40.4,-90.1,43.5],"date":"2024-06-15"}`, RenderImageCall{BBox: box, Date: day, Mode: render.HealthIndex}},
		{"renderImage true color", RenderImage, `{"bbox":[-96.6,40.4,-90.1,43.5],"date":"2024-06-15","mode":"true-color"}`, RenderImageCall{BBox: box, Date: day, Mode: render.TrueColor}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.tool, json.RawMessage(tt.args))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.tool, got.ToolName())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		problem string
	}{
		{"bbox of three", ComputeStats, `{"bbox":[-96.6,40.4,-90.1],"date":"2024-06-15"}`, "bbox: expected 4 numbers [minLon, minLat, maxLon, maxLat], got 3"},
		{"bbox of strings", ComputeStats, `{"bbox":["-96.6","40.4","-90.1","43.5"],"date":"2024-06-15"}`, "bbox[0]: expected a finite number"},
		{"bbox object", RenderImage, `{"bbox":{"minLon":1},"date":"2024-06-15"}`, "bbox: expected an array of 4 numbers [minLon, minLat, maxLon, maxLat]"},
		{"bbox inverted", ComputeStats, `{"bbox":[10,0,5,1],"date":"2024-06-15"}`, "bbox: invalid bounding box: minLon 10 > maxLon 5"},
		{"missing bbox", ComputeStats, `{"date":"2024-06-15"}`, "bbox: required"},
		{"missing date", ComputeStats, `{"bbox":[0,0,1,1]}`, "date: required"},
		{"bad date", ComputeStats, `{"bbox":[0,0,1,1],"date":"June 15"}`, "date: expected YYYY-MM-DD"},
		{"date number", ComputeStats, `{"bbox":[0,0,1,1],"date":20240615}`, "date: expected a string"},
		{"missing query", Locate, `{}`, "query: required"},
		{"blank query", Locate, `{"query":"   "}`, "query: must not be empty"},
		{"range reversed", FindScenes, `{"bbox":[0,0,1,1],"dateRange":{"from":"2024-06-30","to":"2024-06-01"}}`, "dateRange: from must not be after to"},
		{"range missing to", FindScenes, `{"bbox":[0,0,1,1],"dateRange":{"from":"2024-06-01"}}`, "dateRange.to: required"},
		{"range string", FindScenes, `{"bbox":[0,0,1,1],"dateRange":"last month"}`, `dateRange: expected an object {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"}`},
		{"cloud cover out of range", FindScenes, `{"bbox":[0,0,1,1],"dateRange":{"from":"2024-06-01","to":"2024-06-30"},"maxCloudCover":150}`, "maxCloudCover: must be in (0, 100]"},
		{"bad mode", RenderImage, `{"bbox":[0,0,1,1],"date":"2024-06-15","mode":"infrared"}`, `mode: must be "health-index" or "true-color"`},
		{"not an object", Locate, `["Iowa"]`, "arguments: expected a JSON object"},
		{"unknown tool", "deleteEverything", `{}`, "unknown tool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.tool, json.RawMessage(tt.args))

			var verr *toolbox.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.tool, verr.Tool)
			assert.Contains(t, verr.Problems, tt.problem)
		})
	}
}

func TestParse_CollectsEveryProblem(t *testing.T) {
	_, err := Parse(RenderImage, json.RawMessage(`{"bbox":[1,2,3],"mode":"x"}`))

	var verr *toolbox.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
}

func TestParse_CloudCoverNotANumber(t *testing.T) {
	_, err := Parse(FindScenes, json.RawMessage(`{"bbox":[0,0,1,1],"dateRange":{"from":"2024-06-01","to":"2024-06-30"},"maxCloudCover":"low"}`))

	var verr *toolbox.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"maxCloudCover: expected a finite number"}, verr.Problems)
}

func TestParse_EmptyArguments(t *testing.T) {
	_, err := Parse(Locate, nil)

	var verr *toolbox.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"query: required"}, verr.Problems)
}
