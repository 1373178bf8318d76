package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles used by the plain-text renderer. Rendering degrades to unstyled
// text when stdout is not a terminal.
var (
	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleScore  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleHeader = lipgloss.NewStyle().Bold(true).Underline(true)
)

// printer writes command output either as styled text or as JSON.
type printer struct {
	out     io.Writer
	json    bool
	colored bool
}

func newPrinter(jsonOut bool) *printer {
	return &printer{
		out:     os.Stdout,
		json:    jsonOut,
		colored: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
}

// JSON encodes v and returns true when the printer is in JSON mode. Text
// renderers call it first and bail out when it handled the output.
func (p *printer) JSON(v any) bool {
	if !p.json {
		return false
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return true
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *printer) println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

func (p *printer) title(s string) string {
	if !p.colored {
		return s
	}
	return styleTitle.Render(s)
}

func (p *printer) muted(s string) string {
	if !p.colored {
		return s
	}
	return styleMuted.Render(s)
}

func (p *printer) score(f float64) string {
	s := fmt.Sprintf("%.4f", f)
	if !p.colored {
		return s
	}
	return styleScore.Render(s)
}

func (p *printer) header(s string) string {
	if !p.colored {
		return s
	}
	return styleHeader.Render(s)
}

// pathLine renders a node sequence with its edge types interleaved, e.g.
//
//	a -[explicit_link]-> b -[causes]-> c
func (p *printer) pathLine(nodes []string, edges []string) string {
	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			label := ""
			if i-1 < len(edges) {
				label = edges[i-1]
			}
			b.WriteString(" " + p.muted("-["+label+"]->") + " ")
		}
		b.WriteString(n)
	}
	return b.String()
}
