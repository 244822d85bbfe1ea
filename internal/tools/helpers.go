// Package tools implements the MCP tool handlers that expose the bridge
// to an MCP host.
//
// Each tool is a struct with its dependencies injected via constructor:
// Definition() returns the mcp.Tool schema, Handle() processes a call.
// Tools depend on the bridge.Caller abstraction, never on a concrete
// provider process.
package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/crewbridge/internal/bridge"
)

// Lookup resolves a provider name to a caller. *bridge.Registry
// satisfies it.
type Lookup interface {
	Get(name string) (bridge.Caller, error)
	Names() []string
}

// intArg reads a numeric argument; hosts send JSON numbers as float64.
// Missing or non-numeric values yield defaultVal.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// objectArg extracts an object argument. Hosts that only speak strings may
// send the object as JSON text, so that form is accepted as well.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	switch v := req.GetArguments()[key].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return bridge.DecodeArguments([]byte(v))
	default:
		return nil, fmt.Errorf("'%s' must be an object, got %T", key, v)
	}
}

// jsonResult renders a structured document as the tool's text content.
// failed marks the MCP result as an error so hosts surface it as one.
func jsonResult(doc string, failed bool) *mcp.CallToolResult {
	res := mcp.NewToolResultText(doc)
	res.IsError = failed
	return res
}

// providerArg returns the trimmed provider name or a tool error listing
// what is available.
func providerArg(req mcp.CallToolRequest, providers Lookup) (bridge.Caller, string, *mcp.CallToolResult) {
	name := strings.TrimSpace(req.GetString("provider", ""))
	if name == "" {
		return nil, "", mcp.NewToolResultError(fmt.Sprintf(
			"'provider' is required. Available providers: %s", strings.Join(providers.Names(), ", ")))
	}
	caller, err := providers.Get(name)
	if err != nil {
		return nil, name, mcp.NewToolResultError(err.Error())
	}
	return caller, name, nil
}
