// Package journal persists a record of every bridge invocation and crew
// run in SQLite.
//
// The journal is an observer: the bridge reports to it after teardown and
// ignores its failures, so a broken journal never changes a call's result.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/crewbridge/internal/bridge"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Invocation is one journaled bridge call.
type Invocation struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Action     string `json:"action"`
	Operation  string `json:"operation,omitempty"`
	Success    bool   `json:"success"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error_message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// Run is one journaled crew run.
type Run struct {
	ID         string `json:"id"`
	Crew       string `json:"crew"`
	Topic      string `json:"topic"`
	Success    bool   `json:"success"`
	Summary    string `json:"summary,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

// RecordRunParams holds input for RecordRun.
type RecordRunParams struct {
	Crew     string
	Topic    string
	Success  bool
	Summary  string
	Error    string
	Duration time.Duration
}

// Stats aggregates the journal.
type Stats struct {
	TotalInvocations int            `json:"total_invocations"`
	FailedCalls      int            `json:"failed_invocations"`
	TotalRuns        int            `json:"total_runs"`
	ByProvider       map[string]int `json:"by_provider"`
	ByErrorKind      map[string]int `json:"by_error_kind"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds journal configuration.
type Config struct {
	DataDir string
	// MaxErrorLength truncates stored error messages.
	MaxErrorLength int
	// MaxResults caps every listing.
	MaxResults int
}

// DefaultConfig returns the default configuration for the journal.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:        filepath.Join(home, ".crewbridge"),
		MaxErrorLength: 2000,
		MaxResults:     100,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed journal.
type Store struct {
	db  *sql.DB
	cfg Config
}

var _ bridge.Recorder = (*Store)(nil)

// New creates the data directory if needed, opens SQLite in WAL mode and
// runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.MaxErrorLength <= 0 {
		cfg.MaxErrorLength = DefaultConfig().MaxErrorLength
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultConfig().MaxResults
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "journal.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS invocations (
			id            TEXT    PRIMARY KEY,
			provider      TEXT    NOT NULL,
			action        TEXT    NOT NULL,
			operation     TEXT    NOT NULL DEFAULT '',
			success       INTEGER NOT NULL,
			error_kind    TEXT    NOT NULL DEFAULT '',
			error_message TEXT    NOT NULL DEFAULT '',
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_provider ON invocations(provider, created_at);
		CREATE INDEX IF NOT EXISTS idx_invocations_created  ON invocations(created_at);

		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT    PRIMARY KEY,
			crew        TEXT    NOT NULL,
			topic       TEXT    NOT NULL DEFAULT '',
			success     INTEGER NOT NULL,
			summary     TEXT    NOT NULL DEFAULT '',
			error       TEXT    NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Invocations ─────────────────────────────────────────────────────────────

// RecordInvocation stores one finished bridge call. It satisfies
// bridge.Recorder.
func (s *Store) RecordInvocation(inv bridge.Invocation) error {
	id := inv.ID
	if id == "" {
		id = uuid.New().String()
	}
	started := inv.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO invocations (id, provider, action, operation, success, error_kind, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, inv.Provider, inv.Action, inv.Operation, boolToInt(inv.Success),
		string(inv.Kind), Truncate(inv.Error, s.cfg.MaxErrorLength),
		inv.Duration.Milliseconds(), formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("journal: record invocation: %w", err)
	}
	return nil
}

// RecentInvocations returns the newest invocations first. An empty
// provider means all providers.
func (s *Store) RecentInvocations(provider string, limit int) ([]Invocation, error) {
	limit = s.clampLimit(limit)

	query := `SELECT id, provider, action, operation, success, error_kind, error_message, duration_ms, created_at
		FROM invocations`
	args := []any{}
	if provider != "" {
		query += " WHERE provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: recent invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Invocation
	for rows.Next() {
		var inv Invocation
		var success int
		if err := rows.Scan(&inv.ID, &inv.Provider, &inv.Action, &inv.Operation, &success,
			&inv.ErrorKind, &inv.Error, &inv.DurationMs, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan invocation: %w", err)
		}
		inv.Success = success != 0
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ─── Runs ────────────────────────────────────────────────────────────────────

// RecordRun stores a finished crew run and returns its ID.
func (s *Store) RecordRun(p RecordRunParams) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, crew, topic, success, summary, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Crew, p.Topic, boolToInt(p.Success), p.Summary,
		Truncate(p.Error, s.cfg.MaxErrorLength), p.Duration.Milliseconds(), formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("journal: record run: %w", err)
	}
	return id, nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, crew, topic, success, summary, error, duration_ms, created_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, s.clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("journal: recent runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var success int
		if err := rows.Scan(&r.ID, &r.Crew, &r.Topic, &success, &r.Summary, &r.Error, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate journal statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{ByProvider: map[string]int{}, ByErrorKind: map[string]int{}}

	_ = s.db.QueryRow("SELECT COUNT(*) FROM invocations").Scan(&stats.TotalInvocations)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM invocations WHERE success = 0").Scan(&stats.FailedCalls)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns)

	if err := s.countInto(stats.ByProvider, "SELECT provider, COUNT(*) FROM invocations GROUP BY provider"); err != nil {
		return stats, err
	}
	if err := s.countInto(stats.ByErrorKind, "SELECT error_kind, COUNT(*) FROM invocations WHERE error_kind != '' GROUP BY error_kind"); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) countInto(dst map[string]int, query string) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("journal: stats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err == nil {
			dst[key] = n
		}
	}
	return rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) clampLimit(limit int) int {
	if limit <= 0 || limit > s.cfg.MaxResults {
		return s.cfg.MaxResults
	}
	return limit
}

// Truncate shortens s to max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime uses a fixed-width UTC layout so text ordering is time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
