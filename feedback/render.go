package feedback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	goodColor   = lipgloss.Color("34")
	mediumColor = lipgloss.Color("214")
	poorColor   = lipgloss.Color("196")
	dimColor    = lipgloss.Color("241")

	scoreStyle   = lipgloss.NewStyle().Bold(true)
	problemStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(poorColor)
	correctStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle     = lipgloss.NewStyle().Foreground(dimColor)
	tipStyle     = lipgloss.NewStyle().Italic(true).Foreground(dimColor)
	wordBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func tierColor(t Tier) lipgloss.Color {
	switch t {
	case TierGood:
		return goodColor
	case TierMedium:
		return mediumColor
	}
	return poorColor
}

// FormatScore drops a trailing ".0" so integer scores print as integers.
func FormatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// Render lays out the report for a terminal of the given width.
func Render(r Report, width int) string {
	var b strings.Builder
	overall := scoreStyle.Foreground(tierColor(r.Tier)).Render(FormatScore(r.Overall))
	fmt.Fprintf(&b, "Overall score: %s\n", overall)
	b.WriteString(dimStyle.Render(r.SpeechLine()))
	b.WriteString("\n\n")

	var blocks []string
	for _, w := range r.Words {
		blocks = append(blocks, renderWord(w))
	}
	b.WriteString(flow(blocks, width))
	return b.String()
}

func renderWord(w WordBlock) string {
	color := tierColor(w.Tier)
	var lines []string
	if w.HasPhonemes() {
		var letters strings.Builder
		for _, m := range w.Letters {
			if m.Problem {
				letters.WriteString(problemStyle.Render(m.Text))
			} else {
				letters.WriteString(correctStyle.Render(m.Text))
			}
		}
		lines = append(lines, letters.String())
	} else {
		lines = append(lines, w.Word)
	}
	lines = append(lines, scoreStyle.Foreground(color).Render(FormatScore(w.Score)))
	if w.HasPhonemes() {
		var phonemes []string
		for _, m := range w.Phonemes {
			if m.Problem {
				phonemes = append(phonemes, problemStyle.Render(m.Text))
			} else {
				phonemes = append(phonemes, correctStyle.Render(m.Text))
			}
		}
		lines = append(lines, "/"+strings.Join(phonemes, " ")+"/")
		if len(w.Heard) > 0 {
			lines = append(lines, dimStyle.Render("you said /"+strings.Join(w.Heard, " ")+"/"))
		}
		lines = append(lines, tipStyle.Render(w.Tip))
	}
	return wordBox.BorderForeground(color).Render(strings.Join(lines, "\n"))
}

// flow wraps rendered blocks into rows no wider than width.
func flow(blocks []string, width int) string {
	if width <= 0 {
		width = 80
	}
	var rows []string
	var row []string
	rowWidth := 0
	for _, blk := range blocks {
		w := lipgloss.Width(blk)
		if len(row) > 0 && rowWidth+w > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowWidth = nil, 0
		}
		row = append(row, blk)
		rowWidth += w
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n")
}

// Plain renders without styling: problem letters in brackets, problem
// phonemes starred.
func Plain(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall score: %s (%s)\n", FormatScore(r.Overall), r.Tier)
	b.WriteString(r.SpeechLine())
	b.WriteString("\n")
	for _, w := range r.Words {
		word := w.Word
		if w.HasPhonemes() {
			var sb strings.Builder
			for _, m := range w.Letters {
				if m.Problem {
					sb.WriteString("[" + m.Text + "]")
				} else {
					sb.WriteString(m.Text)
				}
			}
			word = sb.String()
		}
		fmt.Fprintf(&b, "  %s %s (%s)", word, FormatScore(w.Score), w.Tier)
		if w.HasPhonemes() {
			var ph []string
			for _, m := range w.Phonemes {
				if m.Problem {
					ph = append(ph, "*"+m.Text+"*")
				} else {
					ph = append(ph, m.Text)
				}
			}
			fmt.Fprintf(&b, " /%s/ - %s", strings.Join(ph, " "), w.Tip)
		}
		b.WriteString("\n")
	}
	return b.String()
}
