// Package server wires all components and creates the MCP server instance.
//
// This is the composition root: it turns configuration into concrete
// bridges, the journal and the registry, and injects them into the tools,
// prompts and resources that depend on abstractions. No business logic
// lives here, only wiring.
package server

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/config"
	"github.com/HendryAvila/crewbridge/internal/journal"
	"github.com/HendryAvila/crewbridge/internal/prompts"
	"github.com/HendryAvila/crewbridge/internal/resources"
	"github.com/HendryAvila/crewbridge/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds everything the front ends (MCP, HTTP, CLI, crews) share.
type Deps struct {
	Registry  *bridge.Registry
	Providers []bridge.Provider
	// Journal is nil when disabled or when it failed to open.
	Journal *journal.Store
}

// Wire builds the registry and the journal from cfg.
//
// The journal is an independent subsystem: if it fails to initialize the
// bridge keeps working, so the failure is logged and Journal stays nil.
// The returned cleanup function is always non-nil and safe to call.
func Wire(cfg *config.Config) (*Deps, func()) {
	deps := &Deps{Registry: bridge.NewRegistry()}
	cleanup := noop

	if !cfg.Journal.Disabled {
		jcfg := journal.DefaultConfig()
		if cfg.Journal.DataDir != "" {
			jcfg.DataDir = cfg.Journal.DataDir
		}
		store, err := journal.New(jcfg)
		if err != nil {
			log.Printf("WARNING: journal disabled: %v", err)
		} else {
			deps.Journal = store
			cleanup = func() {
				if err := store.Close(); err != nil {
					log.Printf("WARNING: journal close: %v", err)
				}
			}
		}
	}

	opts := cfg.Bridge.Options(Version)
	for _, name := range cfg.ProviderNames() {
		p := cfg.Providers[name].Provider(name)
		b := bridge.New(p, opts)
		// Assigning a nil *journal.Store to the interface would make a
		// non-nil Recorder, so only set it when the journal is up.
		if deps.Journal != nil {
			b.SetRecorder(deps.Journal)
		}
		deps.Registry.Register(name, b)
		deps.Providers = append(deps.Providers, p)
	}

	return deps, cleanup
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
func New(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"crewbridge",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Bridge tools ---

	providersTool := tools.NewProvidersTool(deps.Registry)
	s.AddTool(providersTool.Definition(), providersTool.Handle)

	capabilitiesTool := tools.NewCapabilitiesTool(deps.Registry)
	s.AddTool(capabilitiesTool.Definition(), capabilitiesTool.Handle)

	invokeTool := tools.NewInvokeTool(deps.Registry)
	s.AddTool(invokeTool.Definition(), invokeTool.Handle)

	// --- History (only with a working journal) ---

	if deps.Journal != nil {
		historyTool := tools.NewHistoryTool(deps.Journal)
		s.AddTool(historyTool.Definition(), historyTool.Handle)
	}

	// --- Prompts ---

	vaultNote := prompts.NewVaultNotePrompt()
	s.AddPrompt(vaultNote.Definition(), vaultNote.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(deps.Providers)
	s.AddResource(resourceHandler.ProvidersResource(), resourceHandler.HandleProviders)

	return s
}

// noop is the cleanup used when there is nothing to release.
func noop() {}

// serverInstructions tells the AI how to use the bridge.
func serverInstructions() string {
	return `You have access to crewbridge, which runs operations on external tool
providers (Obsidian, Notion, ...) on your behalf.

## HOW TO USE IT

1. bridge_providers: see which providers exist
2. bridge_list_capabilities(provider): see the operations a provider offers and their input schemas
3. bridge_invoke(provider, operation, arguments): run one operation

Every provider is started fresh for each call and stopped afterwards, so
calls are independent and there is nothing to open or close.

## READING RESULTS

bridge_invoke and bridge_list_capabilities return JSON with:
- success: true or false
- result_payload: the provider's content (on success)
- error_message and error_kind (on failure)

error_kind tells you what to do next:
- unknown_operation: error_message lists the available operations; pick one and retry
- provider_error: the provider rejected the arguments or the target; fix the arguments
- launch_failure: the provider cannot start (e.g. docker or the image is missing); tell the user
- handshake_timeout / transport_error: the provider is unhealthy; retry once at most, then tell the user
- invalid_request: the call itself was malformed (empty operation, arguments not an object)
- cancelled: the request was cancelled; do not retry unless asked

bridge_history shows recent calls and why they failed.`
}
