package cli

import (
	"strings"
	"testing"
	"time"

	"example.com/pulselog/internal/persistence/sqlite"
	"example.com/pulselog/internal/streak"
)

func TestSuperscript(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{1, "¹"},
		{3, "³"},
		{8, "⁸"},
		{12, "¹²"},
	}
	for _, tc := range tests {
		if got := superscript(tc.in); got != tc.want {
			t.Errorf("superscript(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStreakBadgeCarriesTierSuperscript(t *testing.T) {
	setNoColor(true)

	s := streak.Summary{DayCount: 12, CurrentTier: 3}
	if got := streakBadge(s); got != "12d³" {
		t.Errorf("streakBadge = %q, want %q", got, "12d³")
	}
}

func TestGatedBadges(t *testing.T) {
	tests := []struct {
		name string
		s    streak.Summary
		want []string
	}{
		{
			name: "nothing earned",
			s:    streak.Summary{DayCount: 3},
			want: nil,
		},
		{
			name: "week only",
			s:    streak.Summary{DayCount: 9, WeekCount: 1},
			want: []string{"1w"},
		},
		{
			name: "week and month",
			s:    streak.Summary{DayCount: 30, WeekCount: 4, MonthCount: 1},
			want: []string{"4w", "1mo"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := gatedBadges(tc.s)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("badge %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestRenderSummaryActiveStreak(t *testing.T) {
	setNoColor(true)

	last := time.Date(2026, 8, 25, 9, 14, 0, 0, time.UTC)
	s := streak.Summary{
		DailiesCount:   3,
		DayCount:       12,
		WeekCount:      1,
		CurrentTier:    3,
		LastLogAt:      &last,
		StreakStartDay: "2026-08-14",
	}

	out := renderSummary(s, time.UTC)

	for _, want := range []string{"12d³", "since 2026-08-14", "3", "1w", "2026-08-25 09:14"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummaryBrokenStreakKeepsLastLog(t *testing.T) {
	setNoColor(true)

	last := time.Date(2026, 8, 20, 22, 0, 0, 0, time.UTC)
	s := streak.Summary{CurrentTier: 1, LastLogAt: &last}

	out := renderSummary(s, time.UTC)

	if !strings.Contains(out, "none") {
		t.Errorf("expected broken streak to render 'none':\n%s", out)
	}
	if !strings.Contains(out, "2026-08-20 22:00") {
		t.Errorf("expected last log instant to survive the break:\n%s", out)
	}
	if strings.Contains(out, "Badges") {
		t.Errorf("expected no badges line for a broken streak:\n%s", out)
	}
}

func TestEntriesTableAlignsColumns(t *testing.T) {
	setNoColor(true)

	entries := []sqlite.Entry{
		{RecordedAt: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC), Energy: 6, Focus: 5, Note: "after coffee", Synced: true},
		{RecordedAt: time.Date(2026, 8, 25, 7, 30, 0, 0, time.UTC), Energy: 3, Focus: 4},
	}

	out := entriesTable(entries, time.UTC)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Energy") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "after coffee") || !strings.Contains(lines[2], "yes") {
		t.Errorf("first row should show note and synced flag: %q", lines[2])
	}
}
