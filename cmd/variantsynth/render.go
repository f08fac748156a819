package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-variantsynth/pkg/bounds"
	"github.com/dd0wney/cluso-variantsynth/pkg/preset"
	"github.com/dd0wney/cluso-variantsynth/pkg/synthesis"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	noteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func writeEncoded(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// outcomeView is the encoded form of a batch outcome
type outcomeView struct {
	Variant string            `json:"variant" yaml:"variant"`
	Error   string            `json:"error,omitempty" yaml:"error,omitempty"`
	Result  *synthesis.Result `json:"result,omitempty" yaml:"result,omitempty"`
}

func renderOutcomes(w io.Writer, format string, outcomes []synthesis.Outcome) error {
	if format != "table" {
		views := make([]outcomeView, 0, len(outcomes))
		for _, o := range outcomes {
			v := outcomeView{Variant: o.Variant, Result: o.Result}
			if o.Err != nil {
				v.Error = o.Err.Error()
			}
			views = append(views, v)
		}
		return writeEncoded(w, format, views)
	}

	t := newTable("Variant", "Status", "Latency (ms)", "Bound (ms)", "Freshness (ms)", "Features / Conflicts")
	var dropped []string
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			msg := "no result"
			if o.Err != nil {
				msg = o.Err.Error()
			}
			t.Row(o.Variant, errorStyle.Render("error"), "", "", "", msg)
			continue
		}
		r := o.Result
		bound := formatMs(r.LatencyBoundMs)
		if r.Feasible() {
			t.Row(r.Variant, successStyle.Render(r.Status.String()), formatMs(r.LatencyMs), bound,
				strconv.FormatInt(r.FreshnessWindowMs, 10), strings.Join(r.Selected(), ", "))
		} else {
			t.Row(r.Variant, errorStyle.Render(r.Status.String()), "", bound, "", strings.Join(r.Conflicts, ", "))
		}
		if dropped == nil {
			dropped = r.Dropped
		}
	}

	fmt.Fprintln(w, titleStyle.Render("Synthesis results"))
	fmt.Fprintln(w, t.Render())
	for _, d := range dropped {
		fmt.Fprintln(w, noteStyle.Render("dropped "+d))
	}
	return nil
}

func renderCompile(w io.Writer, format string, report compileReport) error {
	if format != "table" {
		return writeEncoded(w, format, report)
	}

	t := newTable("Origin", "Kind", "Constraint")
	for _, c := range report.Constraints {
		t.Row(c.Origin, c.Kind, c.Name)
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d features", len(report.Features))))
	fmt.Fprintln(w, strings.Join(report.Features, ", "))
	fmt.Fprintln(w, t.Render())
	for _, d := range report.Dropped {
		fmt.Fprintln(w, noteStyle.Render("dropped "+d))
	}
	fmt.Fprintln(w, report.Cost)
	return nil
}

func renderBounds(w io.Writer, format string, eb *bounds.EmpiricalBounds) error {
	if format != "table" {
		return writeEncoded(w, format, eb)
	}

	t := newTable("Bound", "Value (ms)")
	t.Row("d1 mean period", formatMs(eb.D1MeanPeriodMs))
	t.Row("d1 min inter-arrival", formatMs(eb.D1MinInterarrivalMs))
	t.Row("d1 max inter-arrival", formatMs(eb.D1MaxInterarrivalMs))
	t.Row("d2 max auth latency", formatMs(eb.D2MaxAuthLatencyMs))
	t.Row("d2 max jitter", formatMs(eb.D2MaxJitterMs))
	variants := make([]string, 0, len(eb.D3MaxLatencyByVariant))
	for v := range eb.D3MaxLatencyByVariant {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	for _, v := range variants {
		t.Row("d3 max latency "+v, formatMs(eb.D3MaxLatencyByVariant[v]))
	}
	t.Row("d4 min replay interval", formatMs(eb.D4MinReplayIntervalMs))

	fmt.Fprintln(w, titleStyle.Render("Empirical bounds"))
	fmt.Fprintln(w, t.Render())
	return nil
}

func renderPresets(w io.Writer, format string, catalog *preset.Registry) error {
	variants := catalog.Variants()
	if format != "table" {
		out := make(map[string]preset.Preset, len(variants))
		for _, v := range variants {
			out[v] = catalog.Lookup(v)
		}
		return writeEncoded(w, format, map[string]any{"variants": out})
	}

	t := newTable("Variant", "Preset")
	for _, v := range variants {
		p := catalog.Lookup(v)
		entries := make([]string, 0, len(p))
		for _, name := range p.Features() {
			entries = append(entries, fmt.Sprintf("%s=%t", name, p[name]))
		}
		t.Row(v, strings.Join(entries, ", "))
	}
	fmt.Fprintln(w, titleStyle.Render("Variant presets"))
	fmt.Fprintln(w, t.Render())
	return nil
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
