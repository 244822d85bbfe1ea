package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/journal"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// fakeCaller records what it was asked and answers from a fixed table.
type fakeCaller struct {
	tools    []string
	lastOp   string
	lastArgs map[string]any
}

func (f *fakeCaller) Invoke(_ context.Context, op string, args map[string]any) *bridge.Result {
	f.lastOp, f.lastArgs = op, args
	for _, name := range f.tools {
		if name == op {
			payload, _ := json.Marshal([]map[string]any{{"type": "text", "text": "ok"}})
			return &bridge.Result{Success: true, Operation: op, Payload: payload}
		}
	}
	return &bridge.Result{Operation: op, Error: "Tool '" + op + "' not found.", Kind: bridge.KindUnknownOperation}
}

func (f *fakeCaller) ListCapabilities(_ context.Context) *bridge.ToolList {
	list := &bridge.ToolList{Success: true}
	for _, name := range f.tools {
		list.Tools = append(list.Tools, bridge.ToolDescriptor{Name: name})
	}
	return list
}

func newRegistry(t *testing.T) (*bridge.Registry, *fakeCaller) {
	t.Helper()
	notion := &fakeCaller{tools: []string{"create-page", "query-database"}}
	reg := bridge.NewRegistry()
	reg.Register("notion", notion)
	reg.Register("obsidian", &fakeCaller{tools: []string{"append-note"}})
	return reg, notion
}

// ─── ProvidersTool ──────────────────────────────────────────────────────────

func TestProvidersTool(t *testing.T) {
	reg, _ := newRegistry(t)
	tool := NewProvidersTool(reg)

	if tool.Definition().Name != "bridge_providers" {
		t.Errorf("name = %s", tool.Definition().Name)
	}
	res, err := tool.Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(res)
	if !strings.Contains(text, "- notion") || !strings.Contains(text, "- obsidian") {
		t.Errorf("unexpected output:\n%s", text)
	}
}

func TestProvidersTool_Empty(t *testing.T) {
	res, _ := NewProvidersTool(bridge.NewRegistry()).Handle(context.Background(), makeReq(nil))
	if !strings.Contains(resultText(res), "No providers") {
		t.Errorf("unexpected output: %s", resultText(res))
	}
}

// ─── CapabilitiesTool ───────────────────────────────────────────────────────

func TestCapabilitiesTool(t *testing.T) {
	reg, _ := newRegistry(t)
	tool := NewCapabilitiesTool(reg)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"provider": "notion"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	var list bridge.ToolList
	if err := json.Unmarshal([]byte(resultText(res)), &list); err != nil {
		t.Fatalf("output is not a tool list: %v", err)
	}
	if strings.Join(list.Names(), ",") != "create-page,query-database" {
		t.Errorf("names = %v", list.Names())
	}
}

func TestCapabilitiesTool_BadProvider(t *testing.T) {
	reg, _ := newRegistry(t)
	tool := NewCapabilitiesTool(reg)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing", nil, "Available providers: notion, obsidian"},
		{"unknown", map[string]interface{}{"provider": "jira"}, "provider not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := tool.Handle(context.Background(), makeReq(tt.args))
			if !res.IsError {
				t.Fatal("expected error result")
			}
			if !strings.Contains(resultText(res), tt.want) {
				t.Errorf("output %q does not contain %q", resultText(res), tt.want)
			}
		})
	}
}

// ─── InvokeTool ─────────────────────────────────────────────────────────────

func TestInvokeTool_Success(t *testing.T) {
	reg, notion := newRegistry(t)
	tool := NewInvokeTool(reg)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"provider":  "notion",
		"operation": "create-page",
		"arguments": map[string]interface{}{"title": "Roadmap"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if notion.lastOp != "create-page" || notion.lastArgs["title"] != "Roadmap" {
		t.Errorf("caller got %s %v", notion.lastOp, notion.lastArgs)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(resultText(res)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["success"] != true || doc["operation_name"] != "create-page" {
		t.Errorf("doc = %v", doc)
	}
}

func TestInvokeTool_ArgumentsAsJSONText(t *testing.T) {
	reg, notion := newRegistry(t)
	tool := NewInvokeTool(reg)

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"provider":  "notion",
		"operation": "create-page",
		"arguments": `{"title":"From text"}`,
	}))
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if notion.lastArgs["title"] != "From text" {
		t.Errorf("args = %v", notion.lastArgs)
	}
}

func TestInvokeTool_Failures(t *testing.T) {
	reg, _ := newRegistry(t)
	tool := NewInvokeTool(reg)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing operation", map[string]interface{}{"provider": "notion"}, "'operation' is required"},
		{"bad arguments", map[string]interface{}{"provider": "notion", "operation": "create-page", "arguments": 42.0}, "must be an object"},
		{"malformed arguments text", map[string]interface{}{"provider": "notion", "operation": "create-page", "arguments": "{"}, "JSON object"},
		{"unknown operation", map[string]interface{}{"provider": "notion", "operation": "delete-everything"}, "unknown_operation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Fatalf("expected error result, got %s", resultText(res))
			}
			if !strings.Contains(resultText(res), tt.want) {
				t.Errorf("output %q does not contain %q", resultText(res), tt.want)
			}
		})
	}
}

// ─── HistoryTool ────────────────────────────────────────────────────────────

type fakeHistory struct {
	invs         []journal.Invocation
	err          error
	lastProvider string
	lastLimit    int
}

func (f *fakeHistory) RecentInvocations(provider string, limit int) ([]journal.Invocation, error) {
	f.lastProvider, f.lastLimit = provider, limit
	return f.invs, f.err
}

func (f *fakeHistory) Stats() (*journal.Stats, error) {
	return &journal.Stats{TotalInvocations: len(f.invs), FailedCalls: 1}, nil
}

func TestHistoryTool(t *testing.T) {
	h := &fakeHistory{invs: []journal.Invocation{
		{Provider: "notion", Action: "invoke", Operation: "create-page", Success: true, DurationMs: 1200, CreatedAt: "2026-01-01T00:00:00Z"},
		{Provider: "notion", Action: "invoke", Operation: "nope", ErrorKind: "unknown_operation", Error: "Tool 'nope' not found."},
	}}
	tool := NewHistoryTool(h)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"provider": "notion", "limit": 5.0}))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(res)
	if h.lastProvider != "notion" || h.lastLimit != 5 {
		t.Errorf("query = %q %d", h.lastProvider, h.lastLimit)
	}
	for _, want := range []string{"notion/create-page: ok, 1200ms", "FAILED (unknown_operation)", "2 calls, 1 failed"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestHistoryTool_EmptyAndError(t *testing.T) {
	res, _ := NewHistoryTool(&fakeHistory{}).Handle(context.Background(), makeReq(nil))
	if !strings.Contains(resultText(res), "No invocations") {
		t.Errorf("unexpected: %s", resultText(res))
	}

	res, _ = NewHistoryTool(&fakeHistory{err: errors.New("db locked")}).Handle(context.Background(), makeReq(nil))
	if !res.IsError || !strings.Contains(resultText(res), "db locked") {
		t.Errorf("unexpected: %s", resultText(res))
	}
}

func TestHistoryTool_AgainstJournal(t *testing.T) {
	store, err := journal.New(journal.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.RecordInvocation(bridge.Invocation{
		Provider: "obsidian", Action: bridge.ActionList, Success: true,
		Duration: 40 * time.Millisecond, StartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	res, _ := NewHistoryTool(store).Handle(context.Background(), makeReq(nil))
	if !strings.Contains(resultText(res), "list obsidian: ok, 40ms") {
		t.Errorf("unexpected output:\n%s", resultText(res))
	}
}
