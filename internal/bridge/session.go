package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// stderrTailLimit caps how much provider stderr is kept for error messages.
const stderrTailLimit = 2048

// session is one live provider process plus its MCP client. It is created
// by launch, used by exactly one call, and closed by withSession.
type session struct {
	provider string
	client   *client.Client
	cancel   context.CancelFunc

	mu  sync.Mutex
	cmd *exec.Cmd

	tail       *tailBuffer
	stderrDone chan struct{}
	redact     redactor
	logger     *log.Logger
	verbose    bool
	grace      time.Duration

	tools []mcp.Tool
}

// launch starts the provider process with its explicit environment. The
// process context is derived from ctx, so caller cancellation reaches the
// child even before teardown.
func (b *Bridge) launch(ctx context.Context) (*session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &callError{Kind: KindCancelled, Err: fmt.Errorf("launch: %w", err)}
	}
	if b.provider.Command == "" {
		return nil, newCallError(KindLaunchFailure, "launch %s: no command configured", b.provider.Name)
	}

	env, keys := buildEnv(b.provider, b.lookupEnv)
	procCtx, cancel := context.WithCancel(ctx)

	s := &session{
		provider:   b.provider.Name,
		cancel:     cancel,
		tail:       &tailBuffer{limit: stderrTailLimit},
		stderrDone: make(chan struct{}),
		redact:     newRedactor(b.provider),
		logger:     b.logger,
		verbose:    b.cfg.Verbose,
		grace:      b.cfg.KillGrace,
	}

	grace := b.cfg.KillGrace
	dir := b.provider.Dir
	commandFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		cmd.Dir = dir
		cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
		cmd.WaitDelay = grace
		s.mu.Lock()
		s.cmd = cmd
		s.mu.Unlock()
		return cmd, nil
	}

	tr := transport.NewStdioWithOptions(b.provider.Command, env, b.provider.Args,
		transport.WithCommandFunc(commandFunc),
		transport.WithCommandLogger(providerLogger{name: s.provider, logger: s.logger, redact: s.redact}),
	)
	s.client = client.NewClient(tr)

	if err := s.client.Start(procCtx); err != nil {
		cancel()
		_ = s.client.Close()
		close(s.stderrDone)
		return nil, newCallError(KindLaunchFailure, "launch %s: %s", b.provider.Name, s.redact.String(err.Error()))
	}

	if s.verbose {
		argv := append([]string{b.provider.Command}, b.provider.Args...)
		s.logger.Printf("provider %s: started pid %d: %s (env: %s)",
			s.provider, s.pid(), strings.Join(s.redact.Strings(argv), " "), strings.Join(keys, ","))
	}

	if r, ok := client.GetStderr(s.client); ok && r != nil {
		go s.drainStderr(r)
	} else {
		close(s.stderrDone)
	}
	return s, nil
}

func (s *session) pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// handshake runs initialize and tools/list under the connect timeout and
// stores the discovered tools.
func (s *session) handshake(ctx context.Context, timeout time.Duration, info mcp.Implementation) error {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = info
	if _, err := s.client.Initialize(hctx, req); err != nil {
		return classifyHandshake(ctx, hctx, "initialize", err)
	}

	list, err := s.client.ListTools(hctx, mcp.ListToolsRequest{})
	if err != nil {
		return classifyHandshake(ctx, hctx, "tools/list", err)
	}
	s.tools = list.Tools
	return nil
}

func (s *session) offers(operation string) bool {
	for _, t := range s.tools {
		if t.Name == operation {
			return true
		}
	}
	return false
}

func (s *session) names() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Name
	}
	return names
}

func (s *session) descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		d := ToolDescriptor{Name: t.Name, Description: t.Description}
		switch {
		case t.RawInputSchema != nil:
			d.InputSchema = append(json.RawMessage(nil), t.RawInputSchema...)
		default:
			if schema, err := json.Marshal(t.InputSchema); err == nil {
				d.InputSchema = schema
			}
		}
		out = append(out, d)
	}
	return out
}

// call dispatches tools/call and converts the reply into a payload.
func (s *session) call(ctx context.Context, timeout time.Duration, operation string, arguments map[string]any) (json.RawMessage, error) {
	cctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = operation
	req.Params.Arguments = arguments

	res, err := s.client.CallTool(cctx, req)
	if err != nil {
		return nil, classifyCall(ctx, cctx, err)
	}
	if res == nil {
		return nil, newCallError(KindTransportError, "call: empty response")
	}
	if res.IsError {
		return nil, &callError{Kind: KindProviderError, Err: errors.New(providerMessage(operation, res))}
	}

	content := res.Content
	if content == nil {
		content = []mcp.Content{}
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return nil, newCallError(KindTransportError, "call: encode payload: %v", err)
	}
	return payload, nil
}

// providerMessage flattens the text blocks of an error result.
func providerMessage(operation string, res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok && strings.TrimSpace(tc.Text) != "" {
			parts = append(parts, strings.TrimSpace(tc.Text))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("provider reported a failure for '%s'", operation)
	}
	return strings.Join(parts, "\n")
}

// close terminates the process and releases every pipe. Errors from the
// exit status are expected here (SIGTERM) and swallowed. Stderr gets up to
// one grace period to drain so the tail is complete for error messages.
func (s *session) close() {
	pid := s.pid()
	s.cancel()
	select {
	case <-s.stderrDone:
	case <-time.After(s.grace):
	}
	_ = s.client.Close()
	<-s.stderrDone
	if s.verbose {
		s.logger.Printf("provider %s: pid %d stopped", s.provider, pid)
	}
}

// annotate appends the provider's recent stderr to failures where it is
// likely to explain what went wrong.
func (s *session) annotate(err error) error {
	var ce *callError
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Kind {
	case KindLaunchFailure, KindHandshakeTimeout, KindTransportError:
	default:
		return err
	}
	tail := strings.TrimSpace(s.tail.String())
	if tail == "" {
		return err
	}
	return &callError{Kind: ce.Kind, Err: fmt.Errorf("%w (provider stderr: %s)", ce.Err, s.redact.String(tail))}
}

func (s *session) drainStderr(r io.Reader) {
	defer close(s.stderrDone)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.tail.WriteLine(line)
		if s.verbose {
			s.logger.Printf("provider %s: %s", s.provider, s.redact.String(line))
		}
	}
}

// tailBuffer keeps the last limit bytes of line-oriented output.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) > 0 {
		t.buf = append(t.buf, '\n')
	}
	t.buf = append(t.buf, line...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
