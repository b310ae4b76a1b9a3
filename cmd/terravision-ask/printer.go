package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/Berektassuly/terra-vision-ai/pkg/agent"
	"github.com/Berektassuly/terra-vision-ai/pkg/chats/content"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/vegetation"
)

var (
	colorMuted   = lipgloss.Color("#656d76")
	colorAccent  = lipgloss.Color("#0969da")
	colorError   = lipgloss.Color("#cf222e")
	colorSuccess = lipgloss.Color("#1a7f37")
	colorWarning = lipgloss.Color("#9a6700")

	toolNameStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle       = lipgloss.NewStyle().Foreground(colorSuccess)
	failStyle     = lipgloss.NewStyle().Foreground(colorError)
	dimStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle     = lipgloss.NewStyle().Foreground(colorWarning)

	errorBlockStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(colorError)
)

// printer renders run events for a terminal. Tool activity is printed as it
// happens; the answer text is buffered and rendered once the run finishes.
type printer struct {
	w       io.Writer
	md      *glamour.TermRenderer
	verbose bool

	text   strings.Builder
	images int
	failed bool
}

func newPrinter(w io.Writer, markdown, verbose bool) *printer {
	p := &printer{w: w, verbose: verbose}
	if markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			p.md = r
		}
	}
	return p
}

// Handle prints one event.
func (p *printer) Handle(ev agent.Event) {
	switch ev.Kind {
	case agent.EventTextDelta:
		p.text.WriteString(ev.Text)

	case agent.EventToolCallStart:
		line := "→ " + toolNameStyle.Render(ev.ToolName)
		if p.verbose && len(ev.Args) > 0 {
			line += " " + dimStyle.Render(truncate(string(ev.Args), 120))
		}
		fmt.Fprintln(p.w, line)

	case agent.EventToolCallResult:
		p.toolResult(ev)

	case agent.EventStepFinish:
		if p.verbose {
			fmt.Fprintln(p.w, dimStyle.Render(fmt.Sprintf("step %d: %s", ev.Step, ev.FinishReason)))
		}

	case agent.EventFinish:
		p.finish(ev)

	case agent.EventError:
		p.failed = true
		p.flushText()
		msg := fmt.Sprintf("%s: %s", ev.Code, ev.Message)
		if ev.Incomplete {
			msg += "\n(the answer is incomplete)"
		}
		fmt.Fprintln(p.w, errorBlockStyle.Render(failStyle.Render(msg)))
	}
}

func (p *printer) toolResult(ev agent.Event) {
	if ev.State == content.StateErrored {
		fmt.Fprintln(p.w, "  "+failStyle.Render("✗ "+ev.ToolName)+" "+dimStyle.Render(truncate(string(ev.Result), 160)))
		return
	}

	if ev.ToolName == vegetation.RenderImage && hasImage(ev.Result) {
		p.images++
	}

	line := "  " + okStyle.Render("✓ "+ev.ToolName)
	if p.verbose {
		line += " " + dimStyle.Render(truncate(string(ev.Result), 160))
	}
	fmt.Fprintln(p.w, line)
}

func (p *printer) finish(ev agent.Event) {
	p.flushText()

	if ev.FinishReason == agent.FinishBudget {
		fmt.Fprintln(p.w, warnStyle.Render("stopped after reaching the step limit"))
	}

	var parts []string
	if p.images > 0 {
		parts = append(parts, fmt.Sprintf("%d image(s) rendered", p.images))
	}
	if ev.Usage != nil {
		parts = append(parts, fmt.Sprintf("%s in / %s out tokens", fmtTokens(ev.Usage.InputTokens), fmtTokens(ev.Usage.OutputTokens)))
	}
	if len(parts) > 0 {
		fmt.Fprintln(p.w, dimStyle.Render(strings.Join(parts, " · ")))
	}
}

// flushText renders and prints the buffered answer.
func (p *printer) flushText() {
	text := strings.TrimSpace(p.text.String())
	p.text.Reset()
	if text == "" {
		return
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, renderMarkdown(p.md, text))
}

func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func hasImage(result json.RawMessage) bool {
	var r vegetation.ImageResult
	if err := json.Unmarshal(result, &r); err != nil {
		return false
	}
	return r.Success && strings.HasPrefix(r.ImageDataURL, "data:image/")
}

// truncate shortens s to at most n runes on a single line.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// fmtTokens formats a token count with k/M suffixes.
func fmtTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
