// Package prompts implements MCP prompt handlers.
//
// A prompt is picked by the user in the host and expands into instructions
// that walk the model through the bridge tools in a fixed order.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// VaultNotePrompt handles the vault-note MCP prompt: research a topic and
// file the result in the Obsidian vault through the bridge.
type VaultNotePrompt struct{}

// NewVaultNotePrompt creates a VaultNotePrompt.
func NewVaultNotePrompt() *VaultNotePrompt {
	return &VaultNotePrompt{}
}

// Definition declares the prompt and its arguments.
func (p *VaultNotePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("vault-note",
		mcp.WithPromptDescription(
			"Research a topic and save a structured note to your Obsidian vault "+
				"using the obsidian provider.",
		),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("What the note should be about"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("folder",
			mcp.ArgumentDescription("Vault folder to write into. Default: Research"),
		),
	)
}

// Handle processes the vault-note prompt request.
func (p *VaultNotePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := strings.TrimSpace(req.Params.Arguments["topic"])
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	folder := strings.TrimSpace(req.Params.Arguments["folder"])
	if folder == "" {
		folder = "Research"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Vault note: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want a note about **%s** in my Obsidian vault.\n\n"+
						"1. Research the topic and write a concise markdown note: summary, key points, open questions, sources\n"+
						"2. Run `bridge_list_capabilities` with provider `obsidian` to see which operations exist\n"+
						"3. Use `bridge_invoke` with the operation that appends or creates a file, writing to `%s/%s.md`\n"+
						"4. If the result has `success: false`, read `error_kind`: for `unknown_operation` pick an operation "+
						"from the list in `error_message` and retry; for anything else tell me what failed\n"+
						"5. Confirm the path of the saved note",
					topic, folder, noteFileName(topic),
				)),
			},
		},
	}, nil
}

// noteFileName turns a topic into a vault-safe file name.
func noteFileName(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '#', '^', '[', ']':
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
