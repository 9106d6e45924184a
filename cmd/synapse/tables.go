package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// Render formats the report as a summary table followed by one row per
// layer.
func (r *report) Render() string {
	var b strings.Builder

	total := 0
	for _, res := range r.results {
		total += res.params
	}
	mode := "training"
	if r.model.Eval {
		mode = "eval"
	}
	summary := newPlainTable(lipgloss.Right, lipgloss.Left)
	summary.Row("seed", fmt.Sprint(r.model.Seed))
	summary.Row("mode", mode)
	summary.Row("replicas", humanize.Comma(int64(r.model.Replicas)))
	summary.Row("noise std", fmt.Sprintf("%g", r.model.NoiseStd))
	summary.Row("# layers", humanize.Comma(int64(len(r.results))))
	summary.Row("# parameters", humanize.Comma(int64(total)))
	b.WriteString(titleStyle.Render("Model"))
	b.WriteString("\n")
	b.WriteString(summary.Render())
	b.WriteString("\n")

	layers := newPlainTable(lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left, lipgloss.Left,
		lipgloss.Center, lipgloss.Center, lipgloss.Right)
	layers.Headers("Name", "Type", "Parameters", "Input", "Output", "Noise", "Replicas agree", "mean |y|")
	for _, res := range r.results {
		agree := "yes"
		if !res.agree {
			agree = "no"
		}
		layers.Row(res.entry.Name, res.entry.Type, humanize.Comma(int64(res.params)),
			fmt.Sprint(res.input), fmt.Sprint(res.output), res.noise, agree,
			fmt.Sprintf("%.4f", res.meanAbs))
	}
	b.WriteString(titleStyle.Render("Layers"))
	b.WriteString("\n")
	b.WriteString(layers.Render())
	return b.String()
}
