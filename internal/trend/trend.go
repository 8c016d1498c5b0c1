// Package trend derives chart series from a list of entries. Everything here
// is a pure function of its input; callers decide where entries come from.
package trend

import (
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/moods/internal/domain"
)

// WindowDays is the length of the daily average series
const WindowDays = 7

// ErrRatingOutOfRange is returned when an entry cannot be placed in exactly one bucket
var ErrRatingOutOfRange = errors.New("rating outside 1..5")

// Bucket labels, in output order
const (
	LabelLow     = "low"
	LabelNeutral = "neutral"
	LabelHigh    = "high"
)

// DayPoint is one day of the trailing-week series
type DayPoint struct {
	DayIndex int     `json:"day_index"`
	Date     string  `json:"date"`
	Average  float64 `json:"average"`
	Count    int     `json:"count"`
}

// Bucket counts the entries of one rating band
type Bucket struct {
	Label string `json:"label"`
	Range string `json:"range"`
	Count int    `json:"count"`
}

// Summary bundles the series every view renders
type Summary struct {
	Days         []DayPoint `json:"days"`
	Distribution []Bucket   `json:"distribution"`
	Total        int        `json:"total"`
	Mean         float64    `json:"mean"`
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{y, m, d}
}

func (d civilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, d.month, d.day)
}

// DailyAverages returns the mean rating for each of the 7 calendar days
// ending on now's date in now's location, oldest first. Each entry counts
// toward the calendar date it had in the zone it was recorded in. Days
// without entries report 0.
func DailyAverages(entries []domain.EntryWithTags, now time.Time) []DayPoint {
	points := make([]DayPoint, WindowDays)
	slot := make(map[civilDate]int, WindowDays)
	sums := make([]int, WindowDays)

	y, m, d := now.Date()
	for i := 0; i < WindowDays; i++ {
		// time.Date normalizes day underflow across month and year ends.
		day := dateOf(time.Date(y, m, d-(WindowDays-1-i), 12, 0, 0, 0, now.Location()))
		slot[day] = i
		points[i] = DayPoint{DayIndex: i, Date: day.String()}
	}

	for _, e := range entries {
		i, ok := slot[dateOf(e.Timestamp)]
		if !ok {
			continue
		}
		sums[i] += e.Rating
		points[i].Count++
	}

	for i := range points {
		if points[i].Count > 0 {
			points[i].Average = float64(sums[i]) / float64(points[i].Count)
		}
	}
	return points
}

// Distribution partitions entries into low (1-2), neutral (3) and high (4-5).
// Empty buckets are omitted. An out-of-range rating is an error rather than
// an uncounted entry.
func Distribution(entries []domain.EntryWithTags) ([]Bucket, error) {
	buckets := []Bucket{
		{Label: LabelLow, Range: "1-2"},
		{Label: LabelNeutral, Range: "3"},
		{Label: LabelHigh, Range: "4-5"},
	}

	for _, e := range entries {
		switch e.Rating {
		case 1, 2:
			buckets[0].Count++
		case 3:
			buckets[1].Count++
		case 4, 5:
			buckets[2].Count++
		default:
			return nil, fmt.Errorf("%w: entry %s has rating %d", ErrRatingOutOfRange, e.ID, e.Rating)
		}
	}

	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if b.Count > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

// Summarize computes both series plus the overall count and mean
func Summarize(entries []domain.EntryWithTags, now time.Time) (Summary, error) {
	dist, err := Distribution(entries)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Days:         DailyAverages(entries, now),
		Distribution: dist,
		Total:        len(entries),
	}
	if s.Total > 0 {
		var sum int
		for _, e := range entries {
			sum += e.Rating
		}
		s.Mean = float64(sum) / float64(s.Total)
	}
	return s, nil
}
