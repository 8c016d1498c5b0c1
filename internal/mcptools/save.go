package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/printers"
)

// SaveTool handles the mood_save MCP tool.
type SaveTool struct {
	journal *journal.Journal
}

// NewSaveTool creates a SaveTool.
func NewSaveTool(j *journal.Journal) *SaveTool {
	return &SaveTool{journal: j}
}

// Definition returns the MCP tool definition for mood_save.
func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_save",
		mcp.WithDescription("Record how the user feels right now, with optional notes and tags."),
		mcp.WithNumber("rating",
			mcp.Required(),
			mcp.Description("Mood from 1 (very low) to 5 (very high)"),
		),
		mcp.WithString("notes",
			mcp.Description("Free-form notes"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags as name:category, where category is activity, place or event (e.g. 'Run:activity')"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the mood_save tool call.
func (t *SaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Rating int      `json:"rating"`
		Notes  string   `json:"notes"`
		Tags   []string `json:"tags"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Rating == 0 {
		return mcp.NewToolResultError("'rating' is required"), nil
	}

	draft := journal.Draft{Rating: args.Rating, Notes: args.Notes}
	for _, s := range args.Tags {
		tag, err := journal.ParseDraftTag(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		draft.Tags = append(draft.Tags, tag)
	}

	entry, err := t.journal.Record(ctx, draft)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save entry: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Mood saved.\n\n")
	printers.Entry(&sb, entry)
	return textResult(&sb), nil
}

// ResolveTagTool handles the mood_resolve_tag MCP tool.
type ResolveTagTool struct {
	journal *journal.Journal
}

// NewResolveTagTool creates a ResolveTagTool.
func NewResolveTagTool(j *journal.Journal) *ResolveTagTool {
	return &ResolveTagTool{journal: j}
}

// Definition returns the MCP tool definition for mood_resolve_tag.
func (t *ResolveTagTool) Definition() mcp.Tool {
	return mcp.NewTool("mood_resolve_tag",
		mcp.WithDescription("Return the id of a tag, creating it if it does not exist yet."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Tag name"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Tag category"),
			mcp.Enum("activity", "place", "event"),
		),
	)
}

// Handle processes the mood_resolve_tag tool call.
func (t *ResolveTagTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	category := req.GetString("category", "")

	tag, err := journal.ParseTag(name, category)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := t.journal.ResolveTag(ctx, tag.Name, string(tag.Category))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve tag: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tag %q (%s)\nID: %s", tag.Name, tag.Category, id)), nil
}
