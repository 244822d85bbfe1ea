package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// InvokeTool handles the bridge_invoke MCP tool: one operation on one
// provider, in a process that lives exactly as long as the call.
type InvokeTool struct {
	providers Lookup
}

// NewInvokeTool creates an InvokeTool.
func NewInvokeTool(providers Lookup) *InvokeTool {
	return &InvokeTool{providers: providers}
}

// Definition returns the MCP tool definition for bridge_invoke.
func (t *InvokeTool) Definition() mcp.Tool {
	return mcp.NewTool("bridge_invoke",
		mcp.WithDescription(
			"Run one operation on a provider and return its structured result as JSON "+
				"(success, operation_name, result_payload, error_message, error_kind). "+
				"An unknown operation returns the list of available operations so you can correct the call.",
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("Provider name as listed by bridge_providers"),
		),
		mcp.WithString("operation",
			mcp.Required(),
			mcp.Description("Operation name as listed by bridge_list_capabilities"),
		),
		mcp.WithObject("arguments",
			mcp.Description("Arguments for the operation, passed to the provider unchanged"),
		),
	)
}

// Handle processes the bridge_invoke tool call.
func (t *InvokeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, _, errRes := providerArg(req, t.providers)
	if errRes != nil {
		return errRes, nil
	}

	operation := strings.TrimSpace(req.GetString("operation", ""))
	if operation == "" {
		return mcp.NewToolResultError("'operation' is required"), nil
	}

	args, err := objectArg(req, "arguments")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := caller.Invoke(ctx, operation, args)
	return jsonResult(res.JSON(), !res.Success), nil
}
