package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CapabilitiesTool handles the bridge_list_capabilities MCP tool.
type CapabilitiesTool struct {
	providers Lookup
}

// NewCapabilitiesTool creates a CapabilitiesTool.
func NewCapabilitiesTool(providers Lookup) *CapabilitiesTool {
	return &CapabilitiesTool{providers: providers}
}

// Definition returns the MCP tool definition for bridge_list_capabilities.
func (t *CapabilitiesTool) Definition() mcp.Tool {
	return mcp.NewTool("bridge_list_capabilities",
		mcp.WithDescription(
			"Launch a provider, discover the operations it offers with their input schemas, "+
				"and shut it down again. Returns JSON with success, tools, error_message and error_kind.",
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("Provider name as listed by bridge_providers"),
		),
	)
}

// Handle processes the bridge_list_capabilities tool call.
func (t *CapabilitiesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, _, errRes := providerArg(req, t.providers)
	if errRes != nil {
		return errRes, nil
	}

	list := caller.ListCapabilities(ctx)
	return jsonResult(list.JSON(), !list.Success), nil
}
