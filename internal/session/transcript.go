package session

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vk/planexec/internal/node"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
	colorMuted   = lipgloss.Color("#6B7280")
	colorHeader  = lipgloss.Color("#8B5CF6")
)

// transcriptStyles holds the styles used by RenderTranscript. The zero value
// renders plain text.
type transcriptStyles struct {
	enabled bool
	header  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	skipped lipgloss.Style
	muted   lipgloss.Style
}

func newTranscriptStyles(w io.Writer, color bool) transcriptStyles {
	if !color {
		return transcriptStyles{}
	}
	r := lipgloss.NewRenderer(w)
	return transcriptStyles{
		enabled: true,
		header:  r.NewStyle().Foreground(colorHeader).Bold(true),
		success: r.NewStyle().Foreground(colorSuccess).Bold(true),
		failure: r.NewStyle().Foreground(colorError).Bold(true),
		skipped: r.NewStyle().Foreground(colorWarning),
		muted:   r.NewStyle().Foreground(colorMuted),
	}
}

func (s transcriptStyles) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

func (s transcriptStyles) status(st node.State) string {
	label := strings.ToUpper(st.String())
	switch st {
	case node.Success:
		return s.render(s.success, label)
	case node.Skipped, node.Cancelled:
		return s.render(s.skipped, label)
	default:
		return s.render(s.failure, label)
	}
}

// RenderTranscript writes a human-readable account of sess to w: a header,
// one block per step in index order, and the final placeholder values.
// Colour is applied only when color is true.
func RenderTranscript(w io.Writer, sess *Session, color bool) error {
	st := newTranscriptStyles(w, color)
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", st.render(st.header, "Session"), sess.ID)
	if sess.Plan.Query != "" {
		fmt.Fprintf(&b, "Query:   %s\n", sess.Plan.Query)
	}
	fmt.Fprintf(&b, "Outcome: %s\n", sess.Outcome)
	if !sess.StartedAt.IsZero() && !sess.EndedAt.IsZero() {
		fmt.Fprintf(&b, "Elapsed: %s\n", sess.EndedAt.Sub(sess.StartedAt).Round(time.Millisecond))
	}
	sum := sess.Summarize()
	fmt.Fprintf(&b, "Steps:   %d (%d not successful)\n", sum.Steps, sum.Failed)

	for _, r := range sess.ResultsByIndex() {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s [%d] %s", st.render(st.header, "Step"), r.Index, st.status(r.Status))
		if r.Cause != node.CauseNone {
			fmt.Fprintf(&b, " (%s)", r.Cause)
		}
		if r.ExitCode != nil {
			fmt.Fprintf(&b, " exit=%d", *r.ExitCode)
		}
		if r.Duration > 0 {
			fmt.Fprintf(&b, " %s", st.render(st.muted, r.Duration.Round(time.Millisecond).String()))
		}
		b.WriteString("\n")
		if r.Command != "" {
			fmt.Fprintf(&b, "  $ %s\n", r.Command)
		}
		if r.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", r.Error)
		}
		writeStream(&b, st, "stdout", r.Stdout, r.StdoutTruncated)
		writeStream(&b, st, "stderr", r.Stderr, r.StderrTruncated)
	}

	if len(sess.Placeholders) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", st.render(st.header, "Placeholders"))
		names := make([]string, 0, len(sess.Placeholders))
		for name := range sess.Placeholders {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  %s = %s\n", name, sess.Placeholders[name])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeStream(b *strings.Builder, st transcriptStyles, label, text string, truncated bool) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	fmt.Fprintf(b, "  %s:\n", st.render(st.muted, label))
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(b, "    %s\n", line)
	}
	if truncated {
		fmt.Fprintf(b, "    %s\n", st.render(st.muted, "[output truncated]"))
	}
}
