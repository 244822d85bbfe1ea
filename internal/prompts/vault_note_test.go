package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestVaultNotePrompt(t *testing.T) {
	p := NewVaultNotePrompt()
	if p.Definition().Name != "vault-note" {
		t.Errorf("name = %s", p.Definition().Name)
	}

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"topic": "Vector DBs: a survey"}
	res, err := p.Handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("messages = %d", len(res.Messages))
	}
	text := res.Messages[0].Content.(mcp.TextContent).Text
	for _, want := range []string{"Vector DBs: a survey", "Research/Vector DBs a survey.md", "bridge_invoke", "unknown_operation"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q:\n%s", want, text)
		}
	}
}

func TestVaultNotePrompt_RequiresTopic(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"topic": "  "}
	if _, err := NewVaultNotePrompt().Handle(context.Background(), req); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestNoteFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Plain", "Plain"},
		{"a/b\\c", "abc"},
		{"  many   spaces ", "many spaces"},
		{"Q: why?", "Q why"},
	}
	for _, tt := range tests {
		if got := noteFileName(tt.in); got != tt.want {
			t.Errorf("noteFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
