// Package bridge turns an MCP tool-provider process into a plain,
// synchronous callable.
//
// Every call owns one provider subprocess for its whole lifetime:
//
//	launch → initialize → tools/list → (validate → tools/call) → teardown
//
// Teardown runs on every exit path, including unknown operations, provider
// failures, panics and caller cancellation. Nothing is pooled or cached
// between calls, so concurrent callers never observe each other's process
// and the Bridge itself holds no mutable state after wiring.
//
// The child process receives an explicit environment built from the
// provider's allow-list; the parent's ambient environment is never
// forwarded wholesale.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// ListToolsOperation is the pseudo-operation that InvokeJSON answers with
// the provider's capability list instead of dispatching a call.
const ListToolsOperation = "list_tools"

// Provider describes how to launch one external tool provider.
type Provider struct {
	// Name identifies the provider in logs, the journal and the registry.
	Name string
	// Command and Args form the fixed command line.
	Command string
	Args    []string
	// Env holds values injected into the child by name (credentials,
	// endpoints). They are the only configured values the child sees.
	Env map[string]string
	// Passthrough lists parent variables (e.g. PATH, HOME) copied into the
	// child when set. Anything not listed here or in Env is withheld.
	Passthrough []string
	// Dir is the working directory of the child; empty means inherit.
	Dir string
}

// Config tunes the lifecycle of every call made through a Bridge.
type Config struct {
	// ConnectTimeout bounds initialize + tools/list.
	ConnectTimeout time.Duration
	// CallTimeout bounds the wait for the tools/call response. Zero
	// leaves the call bounded only by the caller's context.
	CallTimeout time.Duration
	// KillGrace is how long a provider gets to exit after SIGTERM before
	// it is killed.
	KillGrace time.Duration
	// ClientName and ClientVersion are announced during initialize.
	ClientName    string
	ClientVersion string
	// Verbose logs process lifecycle and forwards provider stderr.
	Verbose bool
}

// DefaultConfig returns the lifecycle defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 60 * time.Second,
		CallTimeout:    5 * time.Minute,
		KillGrace:      3 * time.Second,
		ClientName:     "crewbridge",
		ClientVersion:  "dev",
	}
}

// Invocation is one finished bridge call as reported to a Recorder.
type Invocation struct {
	ID        string
	Provider  string
	Action    string // "invoke" or "list"
	Operation string
	Success   bool
	Kind      ErrorKind
	Error     string
	Duration  time.Duration
	StartedAt time.Time
}

const (
	ActionInvoke = "invoke"
	ActionList   = "list"
)

// Recorder receives a summary of every finished call. It's an optional
// dependency: a Bridge without one works the same.
type Recorder interface {
	RecordInvocation(inv Invocation) error
}

// Bridge launches a fresh provider process per call. The zero value is
// not usable; construct with New.
type Bridge struct {
	provider  Provider
	cfg       Config
	recorder  Recorder
	logger    *log.Logger
	lookupEnv func(string) (string, bool)
}

// New creates a Bridge for the given provider. Zero durations in cfg fall
// back to DefaultConfig values, except CallTimeout which may be zero.
func New(p Provider, cfg Config) *Bridge {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = def.KillGrace
	}
	if cfg.ClientName == "" {
		cfg.ClientName = def.ClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = def.ClientVersion
	}
	return &Bridge{
		provider:  p,
		cfg:       cfg,
		logger:    log.Default(),
		lookupEnv: os.LookupEnv,
	}
}

// SetRecorder attaches an optional journal. Must be called during wiring,
// before the Bridge is shared.
func (b *Bridge) SetRecorder(r Recorder) { b.recorder = r }

// SetLogger replaces the default logger. Must be called during wiring.
func (b *Bridge) SetLogger(l *log.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Provider returns the provider this Bridge launches.
func (b *Bridge) Provider() Provider { return b.provider }

// Invoke runs operation with arguments on a freshly launched provider and
// blocks until the process has been torn down. It never returns an error
// and never panics: every failure is a Result with Success=false and a
// classified Kind.
func (b *Bridge) Invoke(ctx context.Context, operation string, arguments map[string]any) (res *Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = &Result{Operation: operation, Error: fmt.Sprintf("internal error: %v", p), Kind: KindTransportError}
		}
		res.Duration = time.Since(start)
		b.record(ActionInvoke, operation, res.Success, res.Kind, res.Error, start, res.Duration)
	}()

	if strings.TrimSpace(operation) == "" {
		return failedResult(operation, newCallError(KindInvalidRequest, "operation name is required"))
	}
	if arguments == nil {
		arguments = map[string]any{}
	}

	var payload json.RawMessage
	err := b.withSession(ctx, func(s *session) error {
		if !s.offers(operation) {
			return newCallError(KindUnknownOperation, "%s", unknownOperationMessage(operation, s.names()))
		}
		var err error
		payload, err = s.call(ctx, b.cfg.CallTimeout, operation, arguments)
		return err
	})
	if err != nil {
		return failedResult(operation, err)
	}
	return &Result{Success: true, Operation: operation, Payload: payload}
}

// ListCapabilities launches the provider, discovers its tools and tears it
// down again. Nothing is cached: a second call rediscovers from scratch.
func (b *Bridge) ListCapabilities(ctx context.Context) (list *ToolList) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			list = &ToolList{Error: fmt.Sprintf("internal error: %v", p), Kind: KindTransportError}
		}
		list.Duration = time.Since(start)
		b.record(ActionList, "", list.Success, list.Kind, list.Error, start, list.Duration)
	}()

	var tools []ToolDescriptor
	err := b.withSession(ctx, func(s *session) error {
		tools = s.descriptors()
		return nil
	})
	if err != nil {
		return &ToolList{Error: err.Error(), Kind: kindOf(err)}
	}
	return &ToolList{Success: true, Tools: tools}
}

// InvokeJSON is the text contract consumed by agent frameworks: arguments
// arrive as JSON text and the structured outcome is returned as JSON text.
// The pseudo-operation "list_tools" returns the capability list.
func (b *Bridge) InvokeJSON(ctx context.Context, operation string, argumentsJSON []byte) string {
	if operation == ListToolsOperation {
		return b.ListCapabilities(ctx).JSON()
	}
	args, err := DecodeArguments(argumentsJSON)
	if err != nil {
		return failedResult(operation, err).JSON()
	}
	return b.Invoke(ctx, operation, args).JSON()
}

// DecodeArguments parses JSON text into an argument mapping. Empty input
// and null mean no arguments; anything that is not an object is rejected.
func DecodeArguments(data []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, newCallError(KindInvalidRequest, "arguments must be a JSON object: %v", err)
	}
	return args, nil
}

// withSession owns the scoped lifetime of one provider process. Whatever
// fn returns, the process is terminated and its pipes are closed before
// withSession returns.
func (b *Bridge) withSession(ctx context.Context, fn func(s *session) error) (err error) {
	s, err := b.launch(ctx)
	if err != nil {
		return err
	}
	defer func() {
		s.close()
		if err != nil {
			err = s.annotate(err)
		}
	}()

	info := mcp.Implementation{Name: b.cfg.ClientName, Version: b.cfg.ClientVersion}
	if err := s.handshake(ctx, b.cfg.ConnectTimeout, info); err != nil {
		return err
	}
	return fn(s)
}

// record reports a finished call to the recorder. Best-effort: journal
// failures are logged and never change the result.
func (b *Bridge) record(action, operation string, ok bool, kind ErrorKind, msg string, start time.Time, d time.Duration) {
	if b.recorder == nil {
		return
	}
	inv := Invocation{
		ID:        uuid.New().String(),
		Provider:  b.provider.Name,
		Action:    action,
		Operation: operation,
		Success:   ok,
		Kind:      kind,
		Error:     msg,
		Duration:  d,
		StartedAt: start,
	}
	if err := b.recorder.RecordInvocation(inv); err != nil {
		b.logger.Printf("WARNING: journal: record %s %s/%s: %v", action, b.provider.Name, operation, err)
	}
}
