package vegetation

import (
	_ "embed"
	"strings"
	"text/template"
	"time"

	"github.com/Berektassuly/terra-vision-ai/pkg/geo"
)

// DefaultWindowDays is the search window the policy suggests when the user
// gives no period.
const DefaultWindowDays = 90

//go:embed policy.tmpl
var policySource string

var policyTemplate = template.Must(template.New("policy").Parse(policySource))

// SystemPrompt renders the ordering policy for the given day.
func (s *Service) SystemPrompt(today time.Time) string {
	var b strings.Builder
	_ = policyTemplate.Execute(&b, struct {
		Today             string
		MaxCloudCover     float64
		DefaultWindowDays int
	}{
		Today:             geo.FormatDate(today),
		MaxCloudCover:     s.maxCloudCover,
		DefaultWindowDays: DefaultWindowDays,
	})
	return strings.TrimSpace(b.String())
}
