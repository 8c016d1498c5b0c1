package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/printers"
)

const (
	defaultEntriesLimit = 20
	maxEntriesLimit     = 200
)

// LatestTool handles the mood_latest MCP tool.
type LatestTool struct {
	journal *journal.Journal
}

// NewLatestTool creates a LatestTool.
func NewLatestTool(j *journal.Journal) *LatestTool {
	return &LatestTool{journal: j}
}

// Definition returns the MCP tool definition for mood_latest.
func (t *LatestTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_latest",
		mcp.WithDescription("Show the most recently recorded mood."),
	)
}

// Handle processes the mood_latest tool call.
func (t *LatestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	latest, err := t.journal.Latest(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load latest entry: %v", err)), nil
	}

	var sb strings.Builder
	printers.Latest(&sb, latest)
	return textResult(&sb), nil
}

// EntriesTool handles the mood_entries MCP tool.
type EntriesTool struct {
	journal *journal.Journal
}

// NewEntriesTool creates an EntriesTool.
func NewEntriesTool(j *journal.Journal) *EntriesTool {
	return &EntriesTool{journal: j}
}

// Definition returns the MCP tool definition for mood_entries.
func (t *EntriesTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_entries",
		mcp.WithDescription(
			"List mood entries, newest first. Optionally restrict to a time range or filter with an expression "+
				"over rating, hour, weekday, notes, tags, activities, places and events "+
				"(e.g. \"rating <= 2 && 'Work' in events\").",
		),
		mcp.WithString("from",
			mcp.Description("Start of the range: YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC3339"),
		),
		mcp.WithString("to",
			mcp.Description("End of the range, inclusive; a bare date covers the whole day"),
		),
		mcp.WithString("where",
			mcp.Description("Filter expression"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 200)"),
		),
	)
}

// Handle processes the mood_entries tool call.
func (t *EntriesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var q journal.Query
	var err error

	if q.From, err = t.journal.ParseTime(req.GetString("from", ""), false); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.To, err = t.journal.ParseTime(req.GetString("to", ""), true); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q.Where = req.GetString("where", "")

	q.Limit = intArg(req, "limit", defaultEntriesLimit)
	if q.Limit <= 0 || q.Limit > maxEntriesLimit {
		q.Limit = maxEntriesLimit
	}

	entries, err := t.journal.Entries(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list entries: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No entries match."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d entries\n\n", len(entries))
	printers.Entries(&sb, entries)
	return textResult(&sb), nil
}

// TagsTool handles the mood_tags MCP tool.
type TagsTool struct {
	journal *journal.Journal
}

// NewTagsTool creates a TagsTool.
func NewTagsTool(j *journal.Journal) *TagsTool {
	return &TagsTool{journal: j}
}

// Definition returns the MCP tool definition for mood_tags.
func (t *TagsTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_tags",
		mcp.WithDescription("List known tags, grouped by category. Reuse these names when saving moods."),
		mcp.WithString("category",
			mcp.Description("Only list tags of this category"),
			mcp.Enum("activity", "place", "event"),
		),
	)
}

// Handle processes the mood_tags tool call.
func (t *TagsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := t.journal.Tags(ctx, req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tags: %v", err)), nil
	}
	if len(tags) == 0 {
		return mcp.NewToolResultText("No tags yet."), nil
	}

	var sb strings.Builder
	printers.Tags(&sb, tags)
	return textResult(&sb), nil
}

// TrendsTool handles the mood_trends MCP tool.
type TrendsTool struct {
	journal *journal.Journal
}

// NewTrendsTool creates a TrendsTool.
func NewTrendsTool(j *journal.Journal) *TrendsTool {
	return &TrendsTool{journal: j}
}

// Definition returns the MCP tool definition for mood_trends.
func (t *TrendsTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_trends",
		mcp.WithDescription("Show daily mood averages for the last 7 days and how ratings split into low, neutral and high."),
	)
}

// Handle processes the mood_trends tool call.
func (t *TrendsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := t.journal.Summary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute trends: %v", err)), nil
	}

	var sb strings.Builder
	printers.Trends(&sb, summary)
	return textResult(&sb), nil
}
