package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/crewbridge/internal/journal"
)

// History is the read side of the journal.
type History interface {
	RecentInvocations(provider string, limit int) ([]journal.Invocation, error)
	Stats() (*journal.Stats, error)
}

// HistoryTool handles the bridge_history MCP tool.
type HistoryTool struct {
	history History
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(history History) *HistoryTool {
	return &HistoryTool{history: history}
}

// Definition returns the MCP tool definition for bridge_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("bridge_history",
		mcp.WithDescription(
			"Show recent bridge invocations, newest first, with outcome, error kind and duration. "+
				"Useful to see why earlier calls failed.",
		),
		mcp.WithString("provider",
			mcp.Description("Only show calls to this provider"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max entries (default: 10)"),
		),
	)
}

// Handle processes the bridge_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	provider := strings.TrimSpace(req.GetString("provider", ""))
	limit := intArg(req, "limit", 10)

	invs, err := t.history.RecentInvocations(provider, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read history: %v", err)), nil
	}
	if len(invs) == 0 {
		return mcp.NewToolResultText("No invocations recorded yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Recent invocations (%d)\n\n", len(invs))
	for _, inv := range invs {
		sb.WriteString(FormatInvocation(inv))
		sb.WriteString("\n")
	}

	if stats, err := t.history.Stats(); err == nil {
		fmt.Fprintf(&sb, "\n**Totals**: %d calls, %d failed, %d crew runs\n",
			stats.TotalInvocations, stats.FailedCalls, stats.TotalRuns)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// FormatInvocation renders one journal row as a markdown list item.
func FormatInvocation(inv journal.Invocation) string {
	target := inv.Provider
	if inv.Operation != "" {
		target += "/" + inv.Operation
	}
	status := "ok"
	if !inv.Success {
		status = "FAILED"
		if inv.ErrorKind != "" {
			status += " (" + inv.ErrorKind + ")"
		}
	}
	line := fmt.Sprintf("- %s %s %s: %s, %dms", inv.CreatedAt, inv.Action, target, status, inv.DurationMs)
	if inv.Error != "" {
		line += " | " + journal.Truncate(inv.Error, 120)
	}
	return line
}
