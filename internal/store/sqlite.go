package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/logger"
)

//go:embed schema.sql
var schema string

// Store handles database operations. Writes are serialized; reads may run
// concurrently.
type Store struct {
	db      *sql.DB
	log     *logger.Logger
	now     func() time.Time
	writeMu sync.Mutex
	hub     *hub

	// lookupTag is swapped in tests to simulate an inconsistent store.
	lookupTag func(ctx context.Context, q queryer, in domain.TagInput) (string, error)
}

// Stats holds row counts for the three tables
type Stats struct {
	Entries int `json:"entries"`
	Tags    int `json:"tags"`
	Links   int `json:"links"`
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for background projection failures
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		s.log = l.WithComponent("store")
	}
}

// WithClock overrides the clock used for tag creation times
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Store with the given database path
func New(dbPath string, opts ...Option) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &Store{
		db:  db,
		log: logger.Discard(),
		now: time.Now,
		hub: newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lookupTag = s.findTagID

	return s, nil
}

// Close closes the database connection and ends every subscription
func (s *Store) Close() error {
	s.hub.closeAll()
	return s.db.Close()
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// ResolveTag returns the id of the tag with the given name and category,
// creating it on first use.
func (s *Store) ResolveTag(ctx context.Context, name string, category domain.Category) (string, error) {
	in, err := domain.TagInput{Name: name, Category: category}.Normalize()
	if err != nil {
		return "", err
	}

	var (
		id      string
		created bool
	)
	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, created, err = s.resolveTag(ctx, tx, in)
		return err
	})
	if err != nil {
		return "", err
	}

	if created {
		s.hub.publish(Event{Type: EventTagsChanged})
	}
	return id, nil
}

// SaveEntry persists an entry and links it to its tags in one transaction.
// Tags are created on first use; duplicate tags collapse into one link.
func (s *Store) SaveEntry(ctx context.Context, in domain.NewEntry) (domain.EntryWithTags, error) {
	if err := in.Validate(); err != nil {
		return domain.EntryWithTags{}, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, offset := ts.Zone()

	entry := domain.EntryWithTags{
		MoodEntry: domain.MoodEntry{
			ID:        uuid.New().String(),
			Timestamp: restoreTime(ts.UnixMilli(), offset),
			Rating:    in.Rating,
			Notes:     in.Notes,
		},
	}

	var tagCreated bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO mood_entries (id, timestamp_ms, utc_offset, mood_rating, notes) VALUES (?, ?, ?, ?, ?)",
			entry.ID, ts.UnixMilli(), offset, entry.Rating, entry.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		for _, raw := range in.Tags {
			t, err := raw.Normalize()
			if err != nil {
				return err
			}
			tagID, created, err := s.resolveTag(ctx, tx, t)
			if err != nil {
				return err
			}
			tagCreated = tagCreated || created

			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO entry_tags (entry_id, tag_id) VALUES (?, ?)",
				entry.ID, tagID,
			); err != nil {
				return fmt.Errorf("link entry tag: %w", err)
			}
		}

		entry.Tags, err = s.entryTags(ctx, tx, entry.ID)
		return err
	})
	if err != nil {
		return domain.EntryWithTags{}, err
	}

	s.hub.publish(Event{Type: EventEntriesChanged, EntryID: entry.ID})
	if tagCreated {
		s.hub.publish(Event{Type: EventTagsChanged})
	}
	return entry, nil
}

// resolveTag inserts the tag and falls back to the existing row when the
// unique (name, category) constraint rejects the insert.
func (s *Store) resolveTag(ctx context.Context, q queryer, in domain.TagInput) (string, bool, error) {
	id := uuid.New().String()
	_, err := q.ExecContext(ctx,
		"INSERT INTO tags (id, name, category, created_at) VALUES (?, ?, ?, ?)",
		id, in.Name, string(in.Category), s.now().UnixMilli(),
	)
	if err == nil {
		return id, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, fmt.Errorf("insert tag: %w", err)
	}

	existing, err := s.lookupTag(ctx, q, in)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("%w: %s %q rejected as duplicate but not found", domain.ErrTagIntegrity, in.Category, in.Name)
	}
	if err != nil {
		return "", false, fmt.Errorf("find tag: %w", err)
	}
	return existing, false, nil
}

func (s *Store) findTagID(ctx context.Context, q queryer, in domain.TagInput) (string, error) {
	var id string
	err := q.QueryRowContext(ctx,
		"SELECT id FROM tags WHERE name = ? AND category = ? LIMIT 1",
		in.Name, string(in.Category),
	).Scan(&id)
	return id, err
}

func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// ─── Reads ───────────────────────────────────────────────────────────────────

const entryColumns = "e.id, e.timestamp_ms, e.utc_offset, e.mood_rating, e.notes"

// ListEntries returns every entry with its tags, newest first
func (s *Store) ListEntries(ctx context.Context) ([]domain.EntryWithTags, error) {
	return s.entriesWithTags(ctx, "")
}

// EntriesInRange returns entries whose timestamp lies in [start, end], newest first
func (s *Store) EntriesInRange(ctx context.Context, start, end time.Time) ([]domain.EntryWithTags, error) {
	return s.entriesWithTags(ctx, "WHERE e.timestamp_ms BETWEEN ? AND ?", start.UnixMilli(), end.UnixMilli())
}

// SearchEntries performs a simple text search over notes
func (s *Store) SearchEntries(ctx context.Context, query string) ([]domain.EntryWithTags, error) {
	return s.entriesWithTags(ctx, "WHERE e.notes LIKE ?", "%"+query+"%")
}

// LatestEntry returns the most recent entry, or nil when the store is empty
func (s *Store) LatestEntry(ctx context.Context) (*domain.MoodEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM mood_entries e ORDER BY e.timestamp_ms DESC, e.rowid DESC LIMIT 1",
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest entry: %w", err)
	}
	return &entry, nil
}

// GetEntry retrieves an entry by full id or unique id prefix, with its tags
func (s *Store) GetEntry(ctx context.Context, idOrPrefix string) (*domain.EntryWithTags, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM mood_entries e WHERE e.id LIKE ? ORDER BY e.id LIMIT 2",
		escapeLike(idOrPrefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	var matches []domain.MoodEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		matches = append(matches, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("entry %s: %w", idOrPrefix, domain.ErrNotFound)
	case len(matches) > 1 && matches[0].ID != idOrPrefix:
		return nil, fmt.Errorf("entry prefix %s: %w", idOrPrefix, domain.ErrAmbiguousID)
	}

	tags, err := s.entryTags(ctx, s.db, matches[0].ID)
	if err != nil {
		return nil, err
	}
	return &domain.EntryWithTags{MoodEntry: matches[0], Tags: tags}, nil
}

// TagsByCategory returns the tags of one category ordered by name
func (s *Store) TagsByCategory(ctx context.Context, category domain.Category) ([]domain.Tag, error) {
	if err := category.Validate(); err != nil {
		return nil, err
	}
	return s.queryTags(ctx,
		"SELECT id, name, category, created_at FROM tags WHERE category = ? ORDER BY name",
		string(category),
	)
}

// ListTags returns all tags
func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.queryTags(ctx, "SELECT id, name, category, created_at FROM tags ORDER BY category, name")
}

// Stats counts entries, tags and links
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM mood_entries),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM entry_tags)
	`).Scan(&st.Entries, &st.Tags, &st.Links)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// entriesWithTags runs the entry query and a second query for the tags of
// the same entries, so no connection is held across nested queries.
func (s *Store) entriesWithTags(ctx context.Context, where string, args ...any) ([]domain.EntryWithTags, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM mood_entries e "+where+" ORDER BY e.timestamp_ms DESC, e.rowid DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := []domain.EntryWithTags{}
	index := make(map[string]int)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		index[e.ID] = len(entries)
		entries = append(entries, domain.EntryWithTags{MoodEntry: e, Tags: []domain.Tag{}})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if len(entries) == 0 {
		return entries, nil
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT et.entry_id, t.id, t.name, t.category, t.created_at
		FROM entry_tags et
		JOIN tags t ON t.id = et.tag_id
		JOIN mood_entries e ON e.id = et.entry_id
		`+where+`
		ORDER BY t.category, t.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list entry tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var (
			entryID   string
			t         domain.Tag
			createdMs int64
		)
		if err := tagRows.Scan(&entryID, &t.ID, &t.Name, &t.Category, &createdMs); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdMs)
		if i, ok := index[entryID]; ok {
			entries[i].Tags = append(entries[i].Tags, t)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("list entry tags: %w", err)
	}

	return entries, nil
}

// entryTags returns all tags for an entry
func (s *Store) entryTags(ctx context.Context, q queryer, entryID string) ([]domain.Tag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.id, t.name, t.category, t.created_at
		FROM tags t
		JOIN entry_tags et ON t.id = et.tag_id
		WHERE et.entry_id = ?
		ORDER BY t.category, t.name
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry tags: %w", err)
	}
	return scanTags(rows)
}

func (s *Store) queryTags(ctx context.Context, query string, args ...any) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return scanTags(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (domain.MoodEntry, error) {
	var (
		e      domain.MoodEntry
		ms     int64
		offset int
		notes  sql.NullString
	)
	if err := r.Scan(&e.ID, &ms, &offset, &e.Rating, &notes); err != nil {
		return domain.MoodEntry{}, err
	}
	e.Timestamp = restoreTime(ms, offset)
	if notes.Valid {
		n := notes.String
		e.Notes = &n
	}
	return e, nil
}

func scanTags(rows *sql.Rows) ([]domain.Tag, error) {
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		var (
			t         domain.Tag
			createdMs int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Category, &createdMs); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.CreatedAt = time.UnixMilli(createdMs)
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// restoreTime rebuilds an instant in the fixed zone it was recorded in
func restoreTime(ms int64, offset int) time.Time {
	return time.UnixMilli(ms).In(time.FixedZone("", offset))
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
