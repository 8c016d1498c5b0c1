package mcptools

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

var testNow = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "moods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	j, err := journal.New(s, journal.WithClock(func() time.Time { return testNow }), journal.WithLocation(time.UTC))
	require.NoError(t, err)
	return j
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, tool Tool, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := tool.Handle(context.Background(), makeReq(args))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func mustSucceed(t *testing.T, tool Tool, args map[string]interface{}) string {
	t.Helper()
	result := call(t, tool, args)
	require.False(t, result.IsError, resultText(result))
	return resultText(result)
}

func TestTools_Definitions(t *testing.T) {
	j := newTestJournal(t)

	required := map[string][]string{
		"mood_save":        {"rating"},
		"mood_latest":      nil,
		"mood_entries":     nil,
		"mood_trends":      nil,
		"mood_tags":        nil,
		"mood_resolve_tag": {"name", "category"},
	}

	tools := Tools(j)
	require.Len(t, tools, len(required))
	for _, tool := range tools {
		def := tool.Definition()
		want, ok := required[def.Name]
		require.True(t, ok, "unexpected tool %q", def.Name)
		assert.NotEmpty(t, def.Description)
		assert.ElementsMatch(t, want, def.InputSchema.Required, def.Name)
		for _, name := range want {
			assert.Contains(t, def.InputSchema.Properties, name)
		}
	}

	assert.NotNil(t, NewServer(j))
}

func TestSaveTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewSaveTool(j)

	text := mustSucceed(t, tool, map[string]interface{}{
		"rating": float64(4),
		"notes":  "long walk",
		"tags":   []interface{}{"Walk:activity", "Park:place"},
	})
	assert.Contains(t, text, "Mood saved.")
	assert.Contains(t, text, "Walk")
	assert.Contains(t, text, "Park")
	assert.Contains(t, text, "long walk")

	latest, err := j.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.Rating)
}

func TestSaveTool_Rejects(t *testing.T) {
	j := newTestJournal(t)
	tool := NewSaveTool(j)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing rating", map[string]interface{}{}, "'rating' is required"},
		{"rating out of range", map[string]interface{}{"rating": float64(7)}, "rating must be between 1 and 5"},
		{"fractional rating", map[string]interface{}{"rating": 2.5}, "invalid arguments"},
		{"tag without category", map[string]interface{}{"rating": float64(3), "tags": []interface{}{"Run"}}, "name:category"},
		{"reserved category", map[string]interface{}{"rating": float64(3), "tags": []interface{}{"Ana:person"}}, "invalid tag category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, tool, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(result), tt.want)
		})
	}

	stats, err := j.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, stats)
}

func TestLatestTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewLatestTool(j)

	assert.Contains(t, mustSucceed(t, tool, nil), "No moods recorded yet")

	mustSucceed(t, NewSaveTool(j), map[string]interface{}{"rating": float64(2), "notes": "tired"})
	text := mustSucceed(t, tool, nil)
	assert.Contains(t, text, "2/5")
	assert.Contains(t, text, "tired")
}

func TestEntriesTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewEntriesTool(j)
	save := NewSaveTool(j)

	assert.Equal(t, "No entries match.", mustSucceed(t, tool, nil))

	mustSucceed(t, save, map[string]interface{}{"rating": float64(1), "tags": []interface{}{"Deadline:event"}})
	mustSucceed(t, save, map[string]interface{}{"rating": float64(5), "tags": []interface{}{"Climbing:activity"}})

	all := mustSucceed(t, tool, nil)
	assert.Contains(t, all, "2 entries")

	low := mustSucceed(t, tool, map[string]interface{}{"where": "'Deadline' in events"})
	assert.Contains(t, low, "1 entries")
	assert.Contains(t, low, "Deadline")
	assert.NotContains(t, low, "Climbing")

	limited := mustSucceed(t, tool, map[string]interface{}{"limit": float64(1)})
	assert.Contains(t, limited, "1 entries")

	past := mustSucceed(t, tool, map[string]interface{}{"to": "2026-03-13"})
	assert.Equal(t, "No entries match.", past)

	for _, args := range []map[string]interface{}{
		{"where": "rating >"},
		{"from": "someday"},
		{"from": "2026-03-14", "to": "2026-03-01"},
	} {
		assert.True(t, call(t, tool, args).IsError, args)
	}
}

func TestTagsTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewTagsTool(j)

	assert.Equal(t, "No tags yet.", mustSucceed(t, tool, nil))

	mustSucceed(t, NewResolveTagTool(j), map[string]interface{}{"name": "Gym", "category": "place"})
	mustSucceed(t, NewResolveTagTool(j), map[string]interface{}{"name": "Swim", "category": "activity"})

	all := mustSucceed(t, tool, nil)
	assert.Contains(t, all, "Places")
	assert.Contains(t, all, "Gym")
	assert.Contains(t, all, "Activities")

	places := mustSucceed(t, tool, map[string]interface{}{"category": "place"})
	assert.Contains(t, places, "Gym")
	assert.NotContains(t, places, "Swim")

	assert.True(t, call(t, tool, map[string]interface{}{"category": "person"}).IsError)
}

func TestResolveTagTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewResolveTagTool(j)

	first := mustSucceed(t, tool, map[string]interface{}{"name": " Home ", "category": "place"})
	again := mustSucceed(t, tool, map[string]interface{}{"name": "Home", "category": "Place"})
	assert.Equal(t, first, again)
	assert.Contains(t, first, `Tag "Home" (place)`)

	for _, args := range []map[string]interface{}{
		{"name": "", "category": "place"},
		{"name": "Ana", "category": "person"},
		{"name": "Home"},
	} {
		assert.True(t, call(t, tool, args).IsError, args)
	}
}

func TestTrendsTool(t *testing.T) {
	j := newTestJournal(t)
	tool := NewTrendsTool(j)

	empty := mustSucceed(t, tool, nil)
	assert.Contains(t, empty, "Last 7 days")
	assert.Contains(t, empty, "no entries")

	for _, r := range []float64{2, 4} {
		mustSucceed(t, NewSaveTool(j), map[string]interface{}{"rating": r})
	}
	text := mustSucceed(t, tool, nil)
	assert.Contains(t, text, "2026-03-14")
	assert.Contains(t, text, "3.0 (2)")
	assert.Contains(t, text, "2 entries, mean 3.00")
}
