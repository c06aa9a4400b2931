package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"example.com/pulselog/internal/persistence/sqlite"
	"example.com/pulselog/internal/streak"
)

// Color constants for consistent styling across the CLI.
var (
	colorStreak  = lipgloss.Color("#ffa726")
	colorSuccess = lipgloss.Color("#66bb6a")
	colorMuted   = lipgloss.Color("#888888")
)

// Reusable lipgloss styles. Reassigned to plain renderers when color is off.
var (
	styleStreak  = lipgloss.NewStyle().Foreground(colorStreak).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleLabel   = lipgloss.NewStyle().Width(10)
)

// setNoColor disables styling by swapping every style for a plain renderer.
func setNoColor(disabled bool) {
	if !disabled {
		return
	}
	plain := lipgloss.NewStyle()
	styleStreak = plain
	styleSuccess = plain
	styleMuted = plain
	styleBold = plain
	styleLabel = plain.Width(10)
}

// applyColorPreference turns styling off for --no-color, NO_COLOR, or a
// non-terminal stdout.
func applyColorPreference() {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		setNoColor(true)
		return
	}
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		setNoColor(true)
	}
}

// superscriptDigits maps '0'-'9' to their Unicode superscript forms.
var superscriptDigits = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

// superscript renders n in superscript digits, used for the tier marker on
// the day-streak badge.
func superscript(n int) string {
	var sb strings.Builder
	for _, r := range fmt.Sprintf("%d", n) {
		if sup, ok := superscriptDigits[r]; ok {
			sb.WriteRune(sup)
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// streakBadge renders the day-streak badge with its tier superscript,
// e.g. "12d³" for a 12-day streak at tier 3.
func streakBadge(s streak.Summary) string {
	return fmt.Sprintf("%dd%s", s.DayCount, superscript(s.CurrentTier))
}

// renderSummary lays out the full streak state. Week, month and year badges
// only appear once their counts are above zero.
func renderSummary(s streak.Summary, loc *time.Location) string {
	var sb strings.Builder

	sb.WriteString(styleLabel.Render("Today"))
	sb.WriteString(fmt.Sprintf("%s of %d dailies\n", styleBold.Render(fmt.Sprintf("%d", s.DailiesCount)), streak.MaxDailies))

	sb.WriteString(styleLabel.Render("Streak"))
	if s.DayCount > 0 {
		sb.WriteString(styleStreak.Render(streakBadge(s)))
		if s.StreakStartDay != "" {
			sb.WriteString(styleMuted.Render(fmt.Sprintf("  since %s", s.StreakStartDay)))
		}
	} else {
		sb.WriteString(styleMuted.Render("none"))
	}
	sb.WriteString("\n")

	if badges := gatedBadges(s); len(badges) > 0 {
		sb.WriteString(styleLabel.Render("Badges"))
		sb.WriteString(styleSuccess.Render(strings.Join(badges, "  ")))
		sb.WriteString("\n")
	}

	if s.LastLogAt != nil {
		sb.WriteString(styleLabel.Render("Last log"))
		sb.WriteString(styleMuted.Render(s.LastLogAt.In(loc).Format("2006-01-02 15:04")))
		sb.WriteString("\n")
	}

	return sb.String()
}

// gatedBadges returns the week/month/year badges that have been earned.
func gatedBadges(s streak.Summary) []string {
	var badges []string
	if s.WeekCount > 0 {
		badges = append(badges, fmt.Sprintf("%dw", s.WeekCount))
	}
	if s.MonthCount > 0 {
		badges = append(badges, fmt.Sprintf("%dmo", s.MonthCount))
	}
	if s.YearCount > 0 {
		badges = append(badges, fmt.Sprintf("%dy", s.YearCount))
	}
	return badges
}

// miniBadges is the one-line streak readout shown after recording an entry.
func miniBadges(s streak.Summary) string {
	parts := []string{fmt.Sprintf("%d today", s.DailiesCount)}
	if s.DayCount > 0 {
		parts = append(parts, styleStreak.Render(streakBadge(s)))
	}
	parts = append(parts, gatedBadges(s)...)
	return strings.Join(parts, "  ")
}

// entriesTable renders observation entries as an aligned table.
func entriesTable(entries []sqlite.Entry, loc *time.Location) string {
	headers := []string{"Time", "Energy", "Focus", "Note", "Synced"}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		synced := ""
		if e.Synced {
			synced = "yes"
		}
		row := []string{
			e.RecordedAt.In(loc).Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", e.Energy),
			fmt.Sprintf("%d", e.Focus),
			e.Note,
			synced,
		}
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
		rows = append(rows, row)
	}

	var sb strings.Builder
	for i, h := range headers {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(styleBold.Render(pad(h, widths[i])))
	}
	sb.WriteString("\n")
	for i, w := range widths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(styleMuted.Render(strings.Repeat("─", w)))
	}
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(pad(cell, widths[i]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// pad right-pads s with spaces to the given width.
func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
