// Package output renders CLI results. Styling is applied only when stdout is
// a terminal; piped output stays plain so it composes with other tools.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/restocker/invsearch/internal/catalog"
	"github.com/restocker/invsearch/internal/search"
)

type styles struct {
	header  lipgloss.Style
	id      lipgloss.Style
	score   lipgloss.Style
	dim     lipgloss.Style
	warning lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain}
	}
	return styles{
		header:  lipgloss.NewStyle().Bold(true),
		id:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		score:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// Writer renders results to a stream.
type Writer struct {
	out    io.Writer
	styles styles
}

// New creates a Writer. Color is enabled when out is a terminal.
func New(out io.Writer) *Writer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, styles: newStyles(color)}
}

// NewPlain creates a Writer with styling disabled, for tests and pipes.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out, styles: newStyles(false)}
}

// SearchResponse renders a ranked result list.
func (w *Writer) SearchResponse(resp *search.Response) {
	if resp.Degraded {
		fmt.Fprintln(w.out, w.styles.warning.Render(
			fmt.Sprintf("semantic search unavailable, showing %s results", resp.EffectiveMode)))
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w.out, "no results")
		return
	}

	for i, r := range resp.Results {
		fmt.Fprintf(w.out, "%2d. %s %s\n", i+1,
			w.styles.header.Render(r.Name),
			w.styles.id.Render("("+r.ID+")"))
		fmt.Fprintf(w.out, "    %s  %s\n",
			w.styles.score.Render(fmt.Sprintf("score %.3f", r.Score)),
			w.styles.dim.Render(fmt.Sprintf("on hand %s %s at %.2f  [%s]",
				trimFloat(r.OnHandQty), r.Unit, r.LastCost, strings.Join(r.Origins, "+"))))
	}
	fmt.Fprintln(w.out, w.styles.dim.Render(
		fmt.Sprintf("%d result(s), mode %s, limit %d", len(resp.Results), resp.EffectiveMode, resp.EffectiveLimit)))
}

// Items renders a catalog listing in store order.
func (w *Writer) Items(items []*catalog.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w.out, "catalog is empty")
		return
	}

	for _, it := range items {
		fmt.Fprintf(w.out, "%s %s\n",
			w.styles.id.Render(it.ID),
			w.styles.header.Render(it.Name))
		detail := fmt.Sprintf("    on hand %s %s at %.2f", trimFloat(it.OnHandQty), it.Unit, it.LastCost)
		if it.Vendor != "" {
			detail += "  vendor " + it.Vendor
		}
		if it.Category != "" {
			detail += "  [" + it.Category + "]"
		}
		fmt.Fprintln(w.out, w.styles.dim.Render(detail))
	}
	fmt.Fprintln(w.out, w.styles.dim.Render(fmt.Sprintf("%d item(s)", len(items))))
}

// Stats renders catalog statistics.
func (w *Writer) Stats(stats *search.Stats) {
	fmt.Fprintln(w.out, w.styles.header.Render("catalog"))
	fmt.Fprintf(w.out, "  items:    %d\n", stats.ItemCount)
	fmt.Fprintf(w.out, "  vendors:  %d\n", stats.VendorCount)
	fmt.Fprintf(w.out, "  value:    %.2f\n", stats.TotalValue)
	fmt.Fprintf(w.out, "  indexed:  %d lexical, %d embedded\n", stats.IndexedItems, stats.EmbeddedItems)

	if len(stats.Categories) == 0 {
		return
	}
	fmt.Fprintln(w.out, w.styles.header.Render("categories"))
	names := make([]string, 0, len(stats.Categories))
	for name := range stats.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w.out, "  %-24s %d\n", name, stats.Categories[name])
	}
}

// Error renders a failure message.
func (w *Writer) Error(msg string) {
	fmt.Fprintln(w.out, w.styles.warning.Render("error: "+msg))
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
