// Package resources implements MCP resource handlers.
//
// The host reads these as context; nothing here launches a provider.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/crewbridge/internal/bridge"
)

// ProvidersURI addresses the provider table.
const ProvidersURI = "crewbridge://providers"

// providerView is the public shape of a provider: how it is launched and
// which variables it receives, never their values.
type providerView struct {
	Name        string   `json:"name"`
	Command     string   `json:"command"`
	Args        []string `json:"args"`
	EnvKeys     []string `json:"env_keys"`
	Passthrough []string `json:"passthrough"`
}

// Handler manages resource endpoints.
type Handler struct {
	providers []bridge.Provider
}

// NewHandler serves the given provider table.
func NewHandler(providers []bridge.Provider) *Handler {
	return &Handler{providers: providers}
}

// ProvidersResource returns the MCP resource definition for the provider table.
func (h *Handler) ProvidersResource() mcp.Resource {
	return mcp.NewResource(
		ProvidersURI,
		"Bridge Providers",
		mcp.WithResourceDescription("Configured tool providers with their launch command and environment variable names"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleProviders returns the provider table as JSON.
func (h *Handler) HandleProviders(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views := make([]providerView, 0, len(h.providers))
	for _, p := range h.providers {
		keys := make([]string, 0, len(p.Env))
		for k := range p.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		views = append(views, providerView{
			Name:        p.Name,
			Command:     p.Command,
			Args:        p.Args,
			EnvKeys:     keys,
			Passthrough: p.Passthrough,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling providers: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
