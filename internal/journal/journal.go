// Package journal is the write and query path shared by every surface: it
// applies the entry form rules before anything reaches the store.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/filter"
	"github.com/pbaille/moods/internal/logger"
	"github.com/pbaille/moods/internal/store"
	"github.com/pbaille/moods/internal/trend"
)

// DraftTag is a tag as typed by the user
type DraftTag struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Draft is the raw content of the entry form
type Draft struct {
	Rating int        `json:"mood_rating"`
	Notes  string     `json:"notes,omitempty"`
	Tags   []DraftTag `json:"tags,omitempty"`
}

// Query selects entries. Zero bounds are open; Where is a filter expression.
type Query struct {
	From  time.Time
	To    time.Time
	Where string
	Limit int
}

// Journal validates user input and routes it to the store
type Journal struct {
	store  *store.Store
	filter *filter.Evaluator
	log    *logger.Logger
	base   *logger.Logger
	now    func() time.Time
	loc    *time.Location
}

// Option configures a Journal
type Option func(*Journal)

// WithLogger sets the journal logger
func WithLogger(l *logger.Logger) Option {
	return func(j *Journal) {
		j.base = l
		j.log = l.WithComponent("journal")
	}
}

// WithClock overrides the time source for new entries and trend windows
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		j.now = now
	}
}

// WithLocation sets the zone entries are recorded in and trends are viewed in
func WithLocation(loc *time.Location) Option {
	return func(j *Journal) {
		if loc != nil {
			j.loc = loc
		}
	}
}

// New creates a journal over s
func New(s *store.Store, opts ...Option) (*Journal, error) {
	ev, err := filter.NewEvaluator()
	if err != nil {
		return nil, err
	}

	j := &Journal{
		store:  s,
		filter: ev,
		log:    logger.Discard(),
		base:   logger.Discard(),
		now:    time.Now,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Now returns the current time in the journal's location
func (j *Journal) Now() time.Time {
	return j.now().In(j.loc)
}

// Record validates d and saves it as a new entry stamped with the current time
func (j *Journal) Record(ctx context.Context, d Draft) (domain.EntryWithTags, error) {
	in, err := d.toNewEntry()
	if err != nil {
		return domain.EntryWithTags{}, err
	}
	in.Timestamp = j.Now()

	saved, err := j.store.SaveEntry(ctx, in)
	if err != nil {
		return domain.EntryWithTags{}, err
	}
	j.log.Info("entry recorded", "entry_id", saved.ID, "rating", saved.Rating, "tags", len(saved.Tags))
	return saved, nil
}

func (d Draft) toNewEntry() (domain.NewEntry, error) {
	if err := domain.ValidateRating(d.Rating); err != nil {
		return domain.NewEntry{}, err
	}

	in := domain.NewEntry{Rating: d.Rating}
	if notes := strings.TrimSpace(d.Notes); notes != "" {
		in.Notes = &notes
	}

	for _, t := range d.Tags {
		tag, err := ParseTag(t.Name, t.Category)
		if err != nil {
			return domain.NewEntry{}, err
		}
		in.Tags = append(in.Tags, tag)
	}
	return in, nil
}

// ParseTag normalizes user-typed tag fields
func ParseTag(name, category string) (domain.TagInput, error) {
	c, err := domain.ParseCategory(category)
	if err != nil {
		return domain.TagInput{}, err
	}
	return domain.TagInput{Name: name, Category: c}.Normalize()
}

// ParseDraftTag splits a "name:category" pair. The last colon separates the
// category, so names may contain colons.
func ParseDraftTag(s string) (DraftTag, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return DraftTag{}, fmt.Errorf("%w: %q has no category, want name:category", domain.ErrInvalidCategory, s)
	}
	t := DraftTag{Name: s[:i], Category: s[i+1:]}
	if _, err := ParseTag(t.Name, t.Category); err != nil {
		return DraftTag{}, err
	}
	return t, nil
}

// ResolveTag returns the id of the (name, category) tag, creating it if needed
func (j *Journal) ResolveTag(ctx context.Context, name, category string) (string, error) {
	tag, err := ParseTag(name, category)
	if err != nil {
		return "", err
	}
	return j.store.ResolveTag(ctx, tag.Name, tag.Category)
}

// Latest returns the most recent entry, or nil when the journal is empty
func (j *Journal) Latest(ctx context.Context) (*domain.MoodEntry, error) {
	return j.store.LatestEntry(ctx)
}

// Get returns one entry by id or unique id prefix
func (j *Journal) Get(ctx context.Context, idOrPrefix string) (*domain.EntryWithTags, error) {
	return j.store.GetEntry(ctx, idOrPrefix)
}

// Search returns entries whose notes contain text
func (j *Journal) Search(ctx context.Context, text string) ([]domain.EntryWithTags, error) {
	return j.store.SearchEntries(ctx, text)
}

// Entries returns entries matching q, newest first
func (j *Journal) Entries(ctx context.Context, q Query) ([]domain.EntryWithTags, error) {
	if err := j.filter.Compile(orTrue(q.Where)); err != nil {
		return nil, err
	}

	from, to, bounded, err := j.bounds(q)
	if err != nil {
		return nil, err
	}

	var entries []domain.EntryWithTags
	if bounded {
		entries, err = j.store.EntriesInRange(ctx, from, to)
	} else {
		entries, err = j.store.ListEntries(ctx)
	}
	if err != nil {
		return nil, err
	}

	entries, err = j.filter.Apply(q.Where, entries)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

// bounds fills open ends of q's range. bounded is false when both are open.
func (j *Journal) bounds(q Query) (from, to time.Time, bounded bool, err error) {
	if q.From.IsZero() && q.To.IsZero() {
		return time.Time{}, time.Time{}, false, nil
	}
	from, to = q.From, q.To
	if from.IsZero() {
		from = time.UnixMilli(0)
	}
	if to.IsZero() {
		to = j.now().AddDate(100, 0, 0)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: end %s is before start %s",
			domain.ErrInvalidRange, to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return from, to, true, nil
}

// ParseTime reads a range bound typed by the user: RFC 3339, a local
// "2006-01-02T15:04" or a bare date. A bare date covers the whole day, so
// as an upper bound (end true) it means the last millisecond of that day.
func (j *Journal) ParseTime(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, j.loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, j.loc); err == nil {
		if end {
			return t.AddDate(0, 0, 1).Add(-time.Millisecond), nil
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q as a date or time", domain.ErrInvalidRange, s)
}

func orTrue(expr string) string {
	if strings.TrimSpace(expr) == "" {
		return "true"
	}
	return expr
}

// Tags lists tags, restricted to one category unless category is blank
func (j *Journal) Tags(ctx context.Context, category string) ([]domain.Tag, error) {
	if strings.TrimSpace(category) == "" {
		return j.store.ListTags(ctx)
	}
	c, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	return j.store.TagsByCategory(ctx, c)
}

// Summary computes the trend summary over every entry
func (j *Journal) Summary(ctx context.Context) (trend.Summary, error) {
	entries, err := j.store.ListEntries(ctx)
	if err != nil {
		return trend.Summary{}, err
	}
	return trend.Summarize(entries, j.Now())
}

// Stats returns row counts
func (j *Journal) Stats(ctx context.Context) (store.Stats, error) {
	return j.store.Stats(ctx)
}

// ObserveEntries streams the entry list matching q after every change. Where
// and Limit are applied to each snapshot.
func (j *Journal) ObserveEntries(ctx context.Context, q Query) (<-chan []domain.EntryWithTags, error) {
	if err := j.filter.Compile(orTrue(q.Where)); err != nil {
		return nil, err
	}

	from, to, bounded, err := j.bounds(q)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	var src <-chan []domain.EntryWithTags
	if bounded {
		src, err = j.store.ObserveEntriesInRange(ctx, from, to)
	} else {
		src, err = j.store.ObserveAllEntries(ctx)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []domain.EntryWithTags, 1)
	go func() {
		defer close(out)
		defer cancel()
		for snap := range src {
			snap, err := j.filter.Apply(q.Where, snap)
			if err != nil {
				j.log.Error("filter snapshot failed", "where", q.Where, "error", err)
				return
			}
			if q.Limit > 0 && len(snap) > q.Limit {
				snap = snap[:q.Limit]
			}
			select {
			case <-out:
			default:
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ObserveTags streams the tags of one category after every tag creation
func (j *Journal) ObserveTags(ctx context.Context, category string) (<-chan []domain.Tag, error) {
	c, err := domain.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	return j.store.ObserveTagsByCategory(ctx, c)
}
