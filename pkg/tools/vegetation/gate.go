package vegetation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Berektassuly/terra-vision-ai/pkg/chats/chat"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
)

// ErrUnconfirmedDate is returned by StrictOrdering when a date-bound call
// uses a date no earlier findScenes result returned.
var ErrUnconfirmedDate = errors.New("date was not returned by findScenes")

// StrictOrdering rejects computeStats and renderImage calls whose date does
// not match a scene found by an earlier successful findScenes in c. Other
// calls, and calls with unparseable arguments, pass through; argument errors
// are reported by the tool itself.
func StrictOrdering(c *chat.Chat, tc content.ToolCall) error {
	if tc.Name != ComputeStats && tc.Name != RenderImage {
		return nil
	}

	call, err := Parse(tc.Name, json.RawMessage(tc.Arguments))
	if err != nil {
		return nil
	}

	var date string
	switch v := call.(type) {
	case ComputeStatsCall:
		date = geo.FormatDate(v.Date)
	case RenderImageCall:
		date = geo.FormatDate(v.Date)
	}

	for _, tr := range c.ToolResults(FindScenes) {
		var res SceneResult
		if json.Unmarshal([]byte(tr.Content), &res) != nil || !res.Found {
			continue
		}
		if sceneDate(res) == date {
			return nil
		}
	}

	return fmt.Errorf("%s on %s: %w; call findScenes first and use the date it returns", tc.Name, date, ErrUnconfirmedDate)
}

// sceneDate is the capture day of res. Results replayed from a transcript may
// carry only the timestamp.
func sceneDate(res SceneResult) string {
	if res.Date != "" {
		return res.Date
	}
	d, err := geo.ParseDate(res.Timestamp)
	if err != nil {
		return ""
	}
	return geo.FormatDate(d)
}
