package journal_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/journal"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *journal.Store {
	t.Helper()
	s, err := journal.New(journal.Config{DataDir: t.TempDir(), MaxErrorLength: 50, MaxResults: 10})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *journal.Store, inv bridge.Invocation) {
	t.Helper()
	if err := s.RecordInvocation(inv); err != nil {
		t.Fatalf("RecordInvocation: %v", err)
	}
}

// ─── New ────────────────────────────────────────────────────────────────────

func TestNew_CreatesDBFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := journal.New(journal.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "journal.db")); err != nil {
		t.Errorf("journal.db not created: %v", err)
	}
}

func TestNew_WALMode(t *testing.T) {
	s := newTestStore(t)

	var mode string
	if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}
}

func TestNew_OpenFailure(t *testing.T) {
	restore := journal.SetOpenDB(func(string, string) (*sql.DB, error) {
		return nil, errors.New("driver exploded")
	})
	defer restore()

	_, err := journal.New(journal.Config{DataDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "driver exploded") {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := journal.New(journal.Config{DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	record(t, s, bridge.Invocation{Provider: "notion", Action: bridge.ActionInvoke, Operation: "create-page", Success: true})
	s.Close()

	s2, err := journal.New(journal.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	invs, err := s2.RecentInvocations("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 {
		t.Errorf("got %d invocations after reopen, want 1", len(invs))
	}
}

// ─── Invocations ────────────────────────────────────────────────────────────

func TestRecordInvocation_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	start := time.Now().Add(-time.Second)

	record(t, s, bridge.Invocation{
		ID:        "fixed-id",
		Provider:  "notion",
		Action:    bridge.ActionInvoke,
		Operation: "delete-everything",
		Kind:      bridge.KindUnknownOperation,
		Error:     "Tool 'delete-everything' not found.",
		Duration:  1500 * time.Millisecond,
		StartedAt: start,
	})

	invs, err := s.RecentInvocations("notion", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(invs) != 1 {
		t.Fatalf("got %d invocations, want 1", len(invs))
	}
	got := invs[0]
	if got.ID != "fixed-id" || got.Operation != "delete-everything" || got.Success {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.ErrorKind != "unknown_operation" {
		t.Errorf("error kind = %s", got.ErrorKind)
	}
	if got.DurationMs != 1500 {
		t.Errorf("duration = %d", got.DurationMs)
	}
}

func TestRecordInvocation_TruncatesError(t *testing.T) {
	s := newTestStore(t)
	record(t, s, bridge.Invocation{Provider: "p", Action: "invoke", Error: strings.Repeat("x", 200)})

	invs, _ := s.RecentInvocations("", 1)
	if len(invs[0].Error) != 53 {
		t.Errorf("stored error length = %d, want 53", len(invs[0].Error))
	}
}

func TestRecentInvocations_NewestFirstAndFiltered(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	for i, p := range []string{"notion", "obsidian", "notion"} {
		record(t, s, bridge.Invocation{
			Provider:  p,
			Action:    bridge.ActionInvoke,
			Operation: "op" + string(rune('a'+i)),
			Success:   true,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	all, err := s.RecentInvocations("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Operation != "opc" || all[2].Operation != "opa" {
		t.Errorf("unexpected order: %+v", all)
	}

	notion, _ := s.RecentInvocations("notion", 0)
	if len(notion) != 2 {
		t.Errorf("notion rows = %d, want 2", len(notion))
	}

	limited, _ := s.RecentInvocations("", 1)
	if len(limited) != 1 {
		t.Errorf("limited rows = %d, want 1", len(limited))
	}
}

func TestRecentInvocations_ClampsToMax(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 15; i++ {
		record(t, s, bridge.Invocation{Provider: "p", Action: "list", Success: true})
	}
	invs, _ := s.RecentInvocations("", 1000)
	if len(invs) != 10 {
		t.Errorf("rows = %d, want MaxResults=10", len(invs))
	}
}

// ─── Runs ───────────────────────────────────────────────────────────────────

func TestRecordRun(t *testing.T) {
	s := newTestStore(t)

	id, err := s.RecordRun(journal.RecordRunParams{
		Crew:     "research",
		Topic:    "vector databases",
		Success:  true,
		Summary:  "3 tasks",
		Duration: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty run id")
	}

	runs, err := s.RecentRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Crew != "research" || !runs[0].Success {
		t.Errorf("unexpected runs: %+v", runs)
	}
	if runs[0].DurationMs != 2000 {
		t.Errorf("duration = %d", runs[0].DurationMs)
	}
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s := newTestStore(t)
	record(t, s, bridge.Invocation{Provider: "notion", Action: "invoke", Success: true})
	record(t, s, bridge.Invocation{Provider: "notion", Action: "invoke", Kind: bridge.KindProviderError})
	record(t, s, bridge.Invocation{Provider: "obsidian", Action: "list", Kind: bridge.KindLaunchFailure})
	if _, err := s.RecordRun(journal.RecordRunParams{Crew: "project"}); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalInvocations != 3 || stats.FailedCalls != 2 || stats.TotalRuns != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByProvider["notion"] != 2 || stats.ByProvider["obsidian"] != 1 {
		t.Errorf("by provider = %v", stats.ByProvider)
	}
	if stats.ByErrorKind["provider_error"] != 1 || stats.ByErrorKind["launch_failure"] != 1 {
		t.Errorf("by kind = %v", stats.ByErrorKind)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel..."},
		{"héllo", 2, "hé..."},
		{"hello", 0, "hello"},
	}
	for _, tt := range tests {
		if got := journal.Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
