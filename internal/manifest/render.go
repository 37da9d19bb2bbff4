package manifest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.Und)

// Label turns a snake_case identifier into a display label.
func Label(value string) string {
	return titler.String(strings.ReplaceAll(value, "_", " "))
}

// RenderOptions controls table output.
type RenderOptions struct {
	// Color enables the colored table style; use it only on terminals.
	Color bool
}

// Render formats the manifest as tables for a terminal.
func Render(m *Manifest, opts RenderOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Experiment %s (%s) %s\n", m.Name, m.ExperimentID, Label(string(m.Status)))

	counts := newTable(opts, table.Row{"Status", "Units"})
	counts.AppendRows([]table.Row{
		{Label("completed"), m.Counts.Completed},
		{Label("failed"), m.Counts.Failed},
		{Label("pending"), m.Counts.Pending},
		{Label("in_progress"), m.Counts.InProgress},
	})
	counts.AppendFooter(table.Row{"Total", m.Counts.Total})
	counts.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	b.WriteString(counts.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Manual review: %d\n", len(m.ManualReview))

	if len(m.Failed) > 0 {
		byKind := m.FailuresByKind()
		kinds := make([]string, 0, len(byKind))
		for kind := range byKind {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		failures := newTable(opts, table.Row{"Failure Kind", "Units", "Test IDs"})
		for _, kind := range kinds {
			ids := byKind[kind]
			failures.AppendRow(table.Row{Label(kind), strconv.Itoa(len(ids)), strings.Join(ids, "\n")})
		}
		b.WriteString("\n")
		b.WriteString(failures.Render())
		b.WriteString("\n")
	}

	if len(m.ManualReview) > 0 {
		reviews := newTable(opts, table.Row{"Test ID", "Layers"})
		for _, review := range m.ManualReview {
			layers := make([]string, len(review.Layers))
			for i, layer := range review.Layers {
				layers[i] = Label(layer)
			}
			reviews.AppendRow(table.Row{review.TestID, strings.Join(layers, ", ")})
		}
		b.WriteString("\n")
		b.WriteString(reviews.Render())
		b.WriteString("\n")
	}

	if len(m.MissingResults) > 0 {
		fmt.Fprintf(&b, "\nMissing result artifacts: %s\n", strings.Join(m.MissingResults, ", "))
	}
	return b.String()
}

func newTable(opts RenderOptions, header table.Row) table.Writer {
	tw := table.NewWriter()
	if opts.Color {
		tw.SetStyle(table.StyleColoredDark)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	tw.AppendHeader(header)
	return tw
}
