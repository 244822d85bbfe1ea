// crewbridge: run MCP tool providers (Obsidian, Notion, ...) one call at a
// time and hand their results to agents.
//
// Usage:
//
//	crewbridge serve                       # MCP server (stdio transport)
//	crewbridge serve-http                  # HTTP API
//	crewbridge tools notion                # list a provider's operations
//	crewbridge call notion API-post-search '{"query":"roadmap"}'
//	crewbridge run research --topic "vector databases"
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/HendryAvila/crewbridge/internal/server"
)

// errFailed marks a command whose structured result was already printed
// and reported failure; main exits 1 without printing it again.
var errFailed = errors.New("failed")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(args)
	case "serve-http":
		err = runServeHTTP(args)
	case "tools":
		err = runTools(args)
	case "call":
		err = runCall(args)
	case "history":
		err = runHistory(args)
	case "run":
		err = runCrew(args)
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("crewbridge v%s\n", server.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	var flagsErr *flags.Error
	switch {
	case err == nil:
	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
		fmt.Println(flagsErr.Message)
	case errors.Is(err, errFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `crewbridge v%s, a bridge between LLM agents and MCP tool providers

Usage:
  crewbridge serve                          Start the MCP server (stdio transport)
  crewbridge serve-http [--addr :8080]      Start the HTTP API
  crewbridge tools <provider>               List a provider's operations
  crewbridge call <provider> <op> [json]    Run one operation (json "-" reads stdin)
  crewbridge history [--runs|--stats]       Show recent calls and crew runs
  crewbridge run <crew> --topic <topic>     Run a crew (built-in: research, project)
  crewbridge version                        Print the version

Every command accepts -f/--config <file> (default ~/.crewbridge/config.yaml).
Run "crewbridge <command> --help" for its options.

Environment:
  OBSIDIAN_API_KEY, OBSIDIAN_HOST   Obsidian provider credentials
  NOTION_TOKEN                      Notion provider credentials
  LLM_API_KEY or CEREBRAS_API_KEY   Key for "run"
  CREWBRIDGE_HTTP_TOKEN             Bearer token required by serve-http

MCP host configuration:

  {
    "mcpServers": {
      "crewbridge": {
        "command": "crewbridge",
        "args": ["serve"]
      }
    }
  }
`, server.Version)
}
