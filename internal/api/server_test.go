package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pbaille/moods/internal/domain"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/store"
	"github.com/pbaille/moods/internal/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *journal.Journal) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "moods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	j, err := journal.New(st, journal.WithClock(func() time.Time { return testNow }), journal.WithLocation(time.UTC))
	require.NoError(t, err)

	a := journal.NewAnalytics(j, time.Hour)
	t.Cleanup(a.Close)

	return New(j, a, "127.0.0.1:0", nil), j
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func record(t *testing.T, j *journal.Journal, d journal.Draft) domain.EntryWithTags {
	t.Helper()
	e, err := j.Record(context.Background(), d)
	require.NoError(t, err)
	return e
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestAddEntry(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/entries",
		`{"mood_rating": 4, "notes": " sunny ", "tags": [{"name": "Run", "category": "activity"}, {"name": "Park", "category": "place"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	entry := decode[domain.EntryWithTags](t, rec)
	assert.Equal(t, 4, entry.Rating)
	require.NotNil(t, entry.Notes)
	assert.Equal(t, "sunny", *entry.Notes)
	assert.ElementsMatch(t, []string{"Run", "Park"}, entry.TagNames())
	assert.True(t, entry.Timestamp.Equal(testNow))
}

func TestAddEntry_Rejected(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"mood_rating": `},
		{"rating out of range", `{"mood_rating": 9}`},
		{"blank tag", `{"mood_rating": 3, "tags": [{"name": " ", "category": "event"}]}`},
		{"reserved category", `{"mood_rating": 3, "tags": [{"name": "Ana", "category": "person"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/entries", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}

	stats := decode[store.Stats](t, do(t, s, http.MethodGet, "/stats", ""))
	assert.Equal(t, store.Stats{}, stats)
}

func TestLatestEntry(t *testing.T) {
	s, j := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/entries/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	saved := record(t, j, journal.Draft{Rating: 2})

	rec = do(t, s, http.MethodGet, "/entries/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, saved.ID, decode[domain.MoodEntry](t, rec).ID)
}

func TestListEntries(t *testing.T) {
	s, j := newTestServer(t)
	record(t, j, journal.Draft{Rating: 1, Tags: []journal.DraftTag{{Name: "Exam", Category: "event"}}})
	record(t, j, journal.Draft{Rating: 5, Tags: []journal.DraftTag{{Name: "Run", Category: "activity"}}})
	record(t, j, journal.Draft{Rating: 4})

	all := decode[EntriesResponse](t, do(t, s, http.MethodGet, "/entries", ""))
	assert.Equal(t, 3, all.Count)

	filtered := decode[EntriesResponse](t, do(t, s, http.MethodGet, "/entries?where="+url.QueryEscape("rating >= 4 && size(tags) > 0"), ""))
	require.Equal(t, 1, filtered.Count)
	assert.Equal(t, []string{"Run"}, filtered.Entries[0].TagNames())

	limited := decode[EntriesResponse](t, do(t, s, http.MethodGet, "/entries?limit=2", ""))
	assert.Equal(t, 2, limited.Count)

	today := decode[EntriesResponse](t, do(t, s, http.MethodGet, "/entries?from=2026-03-14&to=2026-03-14", ""))
	assert.Equal(t, 3, today.Count)

	yesterday := decode[EntriesResponse](t, do(t, s, http.MethodGet, "/entries?to=2026-03-13", ""))
	assert.Equal(t, 0, yesterday.Count)
	assert.NotNil(t, yesterday.Entries)

	for _, bad := range []string{
		"/entries?where=" + url.QueryEscape("rating >"),
		"/entries?from=yesterday",
		"/entries?from=2026-03-14&to=2026-03-01",
		"/entries?limit=-1",
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, bad, "").Code, bad)
	}
}

func TestGetEntry(t *testing.T) {
	s, j := newTestServer(t)
	saved := record(t, j, journal.Draft{Rating: 3, Tags: []journal.DraftTag{{Name: "Home", Category: "place"}}})

	rec := do(t, s, http.MethodGet, "/entries/"+saved.ID[:8], "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.EntryWithTags](t, rec)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, []string{"Home"}, got.TagNames())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/entries/ffffffff", "").Code)
}

func TestSearchEntries(t *testing.T) {
	s, j := newTestServer(t)
	record(t, j, journal.Draft{Rating: 3, Notes: "rainy walk"})
	record(t, j, journal.Draft{Rating: 4, Notes: "sunny"})

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/search", "").Code)

	rec := do(t, s, http.MethodGet, "/search?q=rain", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Entries []domain.EntryWithTags `json:"entries"`
	}](t, rec)
	assert.Len(t, body.Entries, 1)
}

func TestTags(t *testing.T) {
	s, _ := newTestServer(t)

	first := do(t, s, http.MethodPost, "/tags", `{"name": " Gym ", "category": "Place"}`)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	again := do(t, s, http.MethodPost, "/tags", `{"name": "Gym", "category": "place"}`)
	require.Equal(t, http.StatusOK, again.Code)

	a := decode[ResolveTagResponse](t, first)
	b := decode[ResolveTagResponse](t, again)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "Gym", a.Name)
	assert.Equal(t, domain.CategoryPlace, a.Category)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/tags", `{"name": "Ana", "category": "person"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/tags?category=weather", "").Code)

	listed := decode[struct {
		Tags []domain.Tag `json:"tags"`
	}](t, do(t, s, http.MethodGet, "/tags?category=place", ""))
	require.Len(t, listed.Tags, 1)
	assert.Equal(t, "Gym", listed.Tags[0].Name)

	none := decode[struct {
		Tags []domain.Tag `json:"tags"`
	}](t, do(t, s, http.MethodGet, "/tags?category=event", ""))
	assert.NotNil(t, none.Tags)
	assert.Empty(t, none.Tags)
}

func TestAnalytics(t *testing.T) {
	s, j := newTestServer(t)
	for _, r := range []int{1, 3, 5, 2, 4} {
		record(t, j, journal.Draft{Rating: r})
	}

	rec := do(t, s, http.MethodGet, "/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[trend.Summary](t, rec)
	assert.Len(t, summary.Days, 7)
	assert.Equal(t, 3.0, summary.Days[6].Average)
	assert.Equal(t, []trend.Bucket{
		{Label: "low", Range: "1-2", Count: 2},
		{Label: "neutral", Range: "3", Count: 1},
		{Label: "high", Range: "4-5", Count: 2},
	}, summary.Distribution)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(domain.ErrInvalidRating))
	assert.Equal(t, http.StatusBadRequest, statusOf(domain.ErrAmbiguousID))
	assert.Equal(t, http.StatusBadRequest, statusOf(errBadParam("nope")))
	assert.Equal(t, http.StatusNotFound, statusOf(domain.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusOf(domain.ErrTagIntegrity))
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage[T any](t *testing.T, conn *websocket.Conn) (string, T) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&raw))

	var data T
	require.NoError(t, json.Unmarshal(raw.Data, &data))
	return raw.Type, data
}

func TestStreamEntries(t *testing.T) {
	s, j := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts, "/ws/entries?where="+url.QueryEscape("rating >= 3"))

	kind, first := readMessage[[]domain.EntryWithTags](t, conn)
	assert.Equal(t, "entries", kind)
	assert.Empty(t, first)

	saved := record(t, j, journal.Draft{Rating: 4})
	_, next := readMessage[[]domain.EntryWithTags](t, conn)
	require.Len(t, next, 1)
	assert.Equal(t, saved.ID, next[0].ID)
}

func TestStreamEntries_RejectsBadFilterBeforeUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/entries?where=" + url.QueryEscape("rating >")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamTags(t *testing.T) {
	s, j := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts, "/ws/tags?category=activity")
	_, first := readMessage[[]domain.Tag](t, conn)
	assert.Empty(t, first)

	_, err := j.ResolveTag(context.Background(), "Swim", "activity")
	require.NoError(t, err)

	kind, next := readMessage[[]domain.Tag](t, conn)
	assert.Equal(t, "tags", kind)
	require.Len(t, next, 1)
	assert.Equal(t, "Swim", next[0].Name)
}

func TestStreamAnalytics(t *testing.T) {
	s, j := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, ts, "/ws/analytics")
	kind, first := readMessage[trend.Summary](t, conn)
	assert.Equal(t, "analytics", kind)
	assert.Zero(t, first.Total)

	record(t, j, journal.Draft{Rating: 5})
	_, next := readMessage[trend.Summary](t, conn)
	assert.Equal(t, 1, next.Total)
	assert.Equal(t, 5.0, next.Days[6].Average)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.echo.ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
