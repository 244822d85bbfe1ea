package crew

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/journal"
	"github.com/HendryAvila/crewbridge/internal/llm"
)

// DefaultMaxToolRounds bounds how many tool calls one task may make.
const DefaultMaxToolRounds = 5

// Providers resolves provider names. *bridge.Registry satisfies it.
type Providers interface {
	Get(name string) (bridge.Caller, error)
}

// RunRecorder persists finished runs. *journal.Store satisfies it.
type RunRecorder interface {
	RecordRun(p journal.RecordRunParams) (string, error)
}

// StepKind identifies a progress event.
type StepKind string

const (
	StepTaskStart  StepKind = "task_start"
	StepToolCall   StepKind = "tool_call"
	StepToolResult StepKind = "tool_result"
	StepTaskDone   StepKind = "task_done"
)

// Step is a progress event passed to Runner.OnStep.
type Step struct {
	Kind   StepKind
	Index  int // 1-based task index
	Total  int
	Task   string
	Agent  string
	Detail string
}

// TaskOutput is what one task produced.
type TaskOutput struct {
	Task       string `json:"task"`
	Agent      string `json:"agent"`
	Output     string `json:"output"`
	OutputFile string `json:"output_file,omitempty"`
	ToolCalls  int    `json:"tool_calls"`
}

// RunResult is the outcome of a whole crew run.
type RunResult struct {
	RunID    string        `json:"run_id,omitempty"`
	Crew     string        `json:"crew"`
	Topic    string        `json:"topic,omitempty"`
	Tasks    []TaskOutput  `json:"tasks"`
	Final    string        `json:"final"`
	Duration time.Duration `json:"-"`
}

// Runner executes crews. LLM and Providers are required; Journal and
// OnStep are optional.
type Runner struct {
	LLM       llm.Completer
	Providers Providers
	Journal   RunRecorder
	// OutputDir receives task output files. Empty means the working directory.
	OutputDir     string
	MaxToolRounds int
	OnStep        func(Step)
}

// toolCall is the JSON an agent answers with to use its provider.
type toolCall struct {
	Provider  string         `json:"provider"`
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
}

// Run executes every task of c in order. The returned result holds the
// outputs of the tasks that completed, also when err is non-nil.
func (r *Runner) Run(ctx context.Context, c *Crew, inputs map[string]string) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Crew: c.Name, Topic: inputs["topic"]}

	err := r.run(ctx, c, inputs, res)
	res.Duration = time.Since(start)
	if len(res.Tasks) > 0 {
		res.Final = res.Tasks[len(res.Tasks)-1].Output
	}
	r.record(res, err)
	return res, err
}

func (r *Runner) run(ctx context.Context, c *Crew, inputs map[string]string, res *RunResult) error {
	if r.LLM == nil {
		return errors.New("crew: no LLM configured")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	for _, name := range c.Inputs {
		if strings.TrimSpace(inputs[name]) == "" {
			return fmt.Errorf("crew %s: input %q is required", c.Name, name)
		}
	}

	for i, task := range c.Tasks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crew %s: %w", c.Name, err)
		}
		agent := c.Agents[task.Agent]
		step := Step{Index: i + 1, Total: len(c.Tasks), Task: task.Name, Agent: agent.Role}

		step.Kind = StepTaskStart
		r.emit(step)

		out, err := r.runTask(ctx, agent, task, inputs, res.Tasks, step)
		if err != nil {
			return fmt.Errorf("crew %s: task %s: %w", c.Name, task.Name, err)
		}

		if task.OutputFile != "" {
			file, err := r.writeOutput(task.OutputFile, inputs, out.Output)
			if err != nil {
				return fmt.Errorf("crew %s: task %s: %w", c.Name, task.Name, err)
			}
			out.OutputFile = file
		}
		res.Tasks = append(res.Tasks, *out)

		step.Kind = StepTaskDone
		step.Detail = out.OutputFile
		r.emit(step)
	}
	return nil
}

// runTask drives one agent through its task, routing tool calls to the
// agent's provider until it answers in plain text.
func (r *Runner) runTask(ctx context.Context, agent Agent, task Task, inputs map[string]string, prior []TaskOutput, step Step) (*TaskOutput, error) {
	var caller bridge.Caller
	var tools *bridge.ToolList
	if agent.Provider != "" {
		if r.Providers == nil {
			return nil, fmt.Errorf("agent %s needs provider %s but no providers are configured", task.Agent, agent.Provider)
		}
		var err error
		if caller, err = r.Providers.Get(agent.Provider); err != nil {
			return nil, err
		}
		tools = caller.ListCapabilities(ctx)
		if !tools.Success {
			return nil, fmt.Errorf("list %s operations: %s", agent.Provider, tools.Error)
		}
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(agent, inputs, tools)},
		{Role: llm.RoleUser, Content: taskPrompt(task, inputs, prior)},
	}
	out := &TaskOutput{Task: task.Name, Agent: task.Agent}

	maxRounds := r.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}

	for {
		reply, err := r.LLM.Complete(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		call, ok := parseToolCall(reply)
		if !ok || caller == nil {
			out.Output = strings.TrimSpace(reply)
			return out, nil
		}
		if out.ToolCalls >= maxRounds {
			return nil, fmt.Errorf("agent %s exceeded %d tool calls", task.Agent, maxRounds)
		}
		out.ToolCalls++

		if call.Provider == "" {
			call.Provider = agent.Provider
		}
		step.Kind = StepToolCall
		step.Detail = call.Provider + "." + call.Operation
		r.emit(step)

		var result *bridge.Result
		if call.Provider != agent.Provider {
			result = &bridge.Result{
				Operation: call.Operation,
				Error:     fmt.Sprintf("provider %q is not available to this agent; use %q", call.Provider, agent.Provider),
				Kind:      bridge.KindInvalidRequest,
			}
		} else {
			result = caller.Invoke(ctx, call.Operation, call.Arguments)
		}

		step.Kind = StepToolResult
		step.Detail = resultSummary(result)
		r.emit(step)

		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: reply},
			llm.Message{Role: llm.RoleUser, Content: "Tool result:\n" + result.JSON() + "\n\nContinue with the task. Answer with another tool_call or with your final answer."},
		)
	}
}

func (r *Runner) writeOutput(name string, inputs map[string]string, content string) (string, error) {
	rel := interpolate(name, fileSafe(inputs))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("output file %q escapes the output directory", rel)
	}
	file := filepath.Join(r.OutputDir, rel)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(file, []byte(content+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return file, nil
}

// record journals the run. Failures are logged, never returned.
func (r *Runner) record(res *RunResult, runErr error) {
	if r.Journal == nil {
		return
	}
	p := journal.RecordRunParams{
		Crew:     res.Crew,
		Topic:    res.Topic,
		Success:  runErr == nil,
		Summary:  journal.Truncate(res.Final, 500),
		Duration: res.Duration,
	}
	if runErr != nil {
		p.Error = runErr.Error()
	}
	id, err := r.Journal.RecordRun(p)
	if err != nil {
		log.Printf("WARNING: journal: %v", err)
		return
	}
	res.RunID = id
}

func (r *Runner) emit(s Step) {
	if r.OnStep != nil {
		r.OnStep(s)
	}
}

// ─── Prompts ─────────────────────────────────────────────────────────────────

func systemPrompt(agent Agent, inputs map[string]string, tools *bridge.ToolList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", interpolate(agent.Role, inputs))
	if agent.Backstory != "" {
		b.WriteString(strings.TrimSpace(interpolate(agent.Backstory, inputs)))
		b.WriteString("\n")
	}
	if agent.Goal != "" {
		fmt.Fprintf(&b, "Your personal goal is: %s\n", interpolate(agent.Goal, inputs))
	}
	if tools == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "\nYou can use the %q provider. Its operations are:\n", agent.Provider)
	for _, t := range tools.Tools {
		fmt.Fprintf(&b, "\n- %s: %s\n", t.Name, strings.TrimSpace(t.Description))
		if len(t.InputSchema) > 0 {
			fmt.Fprintf(&b, "  input schema: %s\n", t.InputSchema)
		}
	}
	fmt.Fprintf(&b, `
To use an operation, answer with ONLY this JSON and nothing else:
{"tool_call":{"provider":%q,"operation":"<name>","arguments":{...}}}

You will receive the result and can then make another call or give your
final answer. The final answer must be plain text, not a tool_call.
`, agent.Provider)
	return b.String()
}

func taskPrompt(task Task, inputs map[string]string, prior []TaskOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current task: %s\n", strings.TrimSpace(interpolate(task.Description, inputs)))
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\nExpected output: %s\n", strings.TrimSpace(interpolate(task.ExpectedOutput, inputs)))
	}
	if len(prior) > 0 {
		b.WriteString("\nContext from previous tasks:\n")
		for _, p := range prior {
			fmt.Fprintf(&b, "\n## %s\n%s\n", p.Task, p.Output)
		}
	}
	return b.String()
}

// ─── Tool calls ──────────────────────────────────────────────────────────────

// parseToolCall extracts a tool_call object from an agent reply. Models
// often wrap JSON in a code fence or add a sentence around it, so the
// outermost braces are what gets decoded.
func parseToolCall(reply string) (*toolCall, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var env struct {
		ToolCall *toolCall `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &env); err != nil {
		return nil, false
	}
	if env.ToolCall == nil || strings.TrimSpace(env.ToolCall.Operation) == "" {
		return nil, false
	}
	if env.ToolCall.Arguments == nil {
		env.ToolCall.Arguments = map[string]any{}
	}
	return env.ToolCall, true
}

func resultSummary(r *bridge.Result) string {
	if r.Success {
		return "ok"
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Error)
}
