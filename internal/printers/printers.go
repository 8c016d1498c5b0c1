// Package printers renders journal data for the terminal
package printers

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/remind"
	"github.com/pbaille/moods/internal/store"
	"github.com/pbaille/moods/internal/trend"
)

const timeLayout = "2006-01-02 15:04"

// barWidth is the length of a full (rating 5) bar
const barWidth = 20

var (
	bold      = color.New(color.Bold).SprintFunc()
	underline = color.New(color.Underline, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	low       = color.New(color.FgRed).SprintFunc()
	neutral   = color.New(color.FgYellow).SprintFunc()
	high      = color.New(color.FgGreen).SprintFunc()
)

func byRating(r int) func(a ...interface{}) string {
	switch {
	case r <= 2:
		return low
	case r == 3:
		return neutral
	default:
		return high
	}
}

// Mood renders a rating as filled and empty dots
func Mood(r int) string {
	if r < domain.MinRating || r > domain.MaxRating {
		return fmt.Sprintf("?%d", r)
	}
	dots := strings.Repeat("●", r) + strings.Repeat("○", domain.MaxRating-r)
	return byRating(r)(dots)
}

// ShortID returns the prefix users type to refer to an entry
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func notesOf(e domain.MoodEntry) string {
	if e.Notes == nil {
		return ""
	}
	return *e.Notes
}

// Entries prints one row per entry
func Entries(w io.Writer, entries []domain.EntryWithTags) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold("ID"), bold("When"), bold("Mood"), bold("Tags"), bold("Notes"))
	for _, e := range entries {
		tbl.AddRow(
			ShortID(e.ID),
			e.Timestamp.Format(timeLayout),
			Mood(e.Rating),
			strings.Join(e.TagNames(), ", "),
			truncate(notesOf(e.MoodEntry), 50),
		)
	}
	_, _ = fmt.Fprintln(w, tbl)
}

// Entry prints every field of one entry
func Entry(w io.Writer, e domain.EntryWithTags) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.Wrap = true
	tbl.MaxColWidth = 72

	tbl.AddRow(bold("ID:"), e.ID)
	tbl.AddRow(bold("When:"), e.Timestamp.Format("2006-01-02 15:04:05 -07:00"))
	tbl.AddRow(bold("Mood:"), fmt.Sprintf("%s  %d/%d", Mood(e.Rating), e.Rating, domain.MaxRating))
	for _, c := range domain.Categories {
		if names := e.TagNames(c); len(names) > 0 {
			tbl.AddRow(bold(categoryTitle(c)+":"), strings.Join(names, ", "))
		}
	}
	if notes := notesOf(e.MoodEntry); notes != "" {
		tbl.AddRow(bold("Notes:"), notes)
	}
	_, _ = fmt.Fprintln(w, tbl)
}

// Latest prints the most recent entry, or a hint when there is none
func Latest(w io.Writer, e *domain.MoodEntry) {
	if e == nil {
		_, _ = fmt.Fprintln(w, "No moods recorded yet. Use 'moods add' to record one.")
		return
	}
	Entry(w, domain.EntryWithTags{MoodEntry: *e})
}

var categoryTitles = map[domain.Category]string{
	domain.CategoryActivity: "Activities",
	domain.CategoryPlace:    "Places",
	domain.CategoryEvent:    "Events",
}

func categoryTitle(c domain.Category) string {
	if t, ok := categoryTitles[c]; ok {
		return t
	}
	return string(c)
}

// Tags prints tags grouped by category
func Tags(w io.Writer, tags []domain.Tag) {
	groups := make(map[domain.Category][]string)
	for _, t := range tags {
		groups[t.Category] = append(groups[t.Category], t.Name)
	}

	for _, c := range domain.Categories {
		names := groups[c]
		if len(names) == 0 {
			continue
		}
		_, _ = fmt.Fprintln(w, underline(categoryTitle(c)))
		for _, n := range names {
			_, _ = fmt.Fprintf(w, "  %s\n", n)
		}
	}
}

// Trends prints the 7-day bar chart followed by the distribution
func Trends(w io.Writer, s trend.Summary) {
	_, _ = fmt.Fprintln(w, underline("Last 7 days"))

	tbl := uitable.New()
	tbl.Separator = "  "
	for _, d := range s.Days {
		if d.Count == 0 {
			tbl.AddRow(d.Date, faint(strings.Repeat("·", barWidth)), faint("-"))
			continue
		}
		filled := int(d.Average/float64(domain.MaxRating)*barWidth + 0.5)
		bar := strings.Repeat("█", filled) + strings.Repeat(" ", barWidth-filled)
		tbl.AddRow(d.Date, byRating(int(d.Average+0.5))(bar), fmt.Sprintf("%.1f (%d)", d.Average, d.Count))
	}
	_, _ = fmt.Fprintln(w, tbl)

	_, _ = fmt.Fprintln(w, underline("Distribution"))
	if s.Total == 0 {
		_, _ = fmt.Fprintln(w, "  no entries")
		return
	}

	dist := uitable.New()
	dist.Separator = "  "
	for _, b := range s.Distribution {
		pct := float64(b.Count) / float64(s.Total) * 100
		paint := high
		switch b.Label {
		case trend.LabelLow:
			paint = low
		case trend.LabelNeutral:
			paint = neutral
		}
		dist.AddRow(paint(b.Label), "("+b.Range+")", b.Count, fmt.Sprintf("%.0f%%", pct))
	}
	_, _ = fmt.Fprintln(w, dist)
	_, _ = fmt.Fprintf(w, "%d entries, mean %.2f\n", s.Total, s.Mean)
}

// Stats prints row counts
func Stats(w io.Writer, st store.Stats, dbPath string) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold("Database:"), dbPath)
	tbl.AddRow(bold("Entries:"), st.Entries)
	tbl.AddRow(bold("Tags:"), st.Tags)
	tbl.AddRow(bold("Links:"), st.Links)
	_, _ = fmt.Fprintln(w, tbl)
}

// Reminder prints the outcome of a reminder check
func Reminder(w io.Writer, r remind.Result) {
	if r.Due {
		_, _ = fmt.Fprintf(w, "%s %s. How are you feeling?\n", neutral("Reminder:"), r.Reason())
		return
	}
	_, _ = fmt.Fprintf(w, "%s last mood recorded %s ago.\n", high("Up to date:"), r.Since.Truncate(time.Minute))
}
