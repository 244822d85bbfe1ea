package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProvidersTool handles the bridge_providers MCP tool.
type ProvidersTool struct {
	providers Lookup
}

// NewProvidersTool creates a ProvidersTool.
func NewProvidersTool(providers Lookup) *ProvidersTool {
	return &ProvidersTool{providers: providers}
}

// Definition returns the MCP tool definition for bridge_providers.
func (t *ProvidersTool) Definition() mcp.Tool {
	return mcp.NewTool("bridge_providers",
		mcp.WithDescription(
			"List the tool providers this bridge can launch (e.g. obsidian, notion). "+
				"Use bridge_list_capabilities next to see what a provider offers.",
		),
	)
}

// Handle processes the bridge_providers tool call.
func (t *ProvidersTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := t.providers.Names()
	if len(names) == 0 {
		return mcp.NewToolResultText("No providers configured."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Providers (%d)\n\n", len(names))
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s\n", name)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
