// Package crew runs small, declarative LLM agent crews.
//
// A crew is a list of tasks executed strictly in order. Each task is
// handled by one agent; an agent bound to a provider may call that
// provider's operations through the bridge while working on its task.
// Every task sees the outputs of the tasks before it.
package crew

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed crews/*.yaml
var builtinFS embed.FS

// ErrCrewNotFound is returned by Builtin for unknown names.
var ErrCrewNotFound = errors.New("crew not found")

// ─── Types ───────────────────────────────────────────────────────────────────

// Crew is a named, ordered set of tasks and the agents that perform them.
type Crew struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Inputs lists the placeholders a run must supply, e.g. "topic".
	Inputs []string         `yaml:"inputs"`
	Agents map[string]Agent `yaml:"agents"`
	Tasks  []Task           `yaml:"tasks"`
}

// Agent is a persona. Provider, when set, is the only provider the agent
// may call.
type Agent struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
	Provider  string `yaml:"provider,omitempty"`
}

// Task is one step of a crew.
type Task struct {
	Name           string `yaml:"name"`
	Agent          string `yaml:"agent"`
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
	// OutputFile is relative to the runner's output directory.
	OutputFile string `yaml:"output_file,omitempty"`
}

// ─── Loading ─────────────────────────────────────────────────────────────────

// Parse decodes and validates a crew definition.
func Parse(data []byte) (*Crew, error) {
	var c Crew
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse crew: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a crew definition from a YAML file.
func Load(file string) (*Crew, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read crew %s: %w", file, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return c, nil
}

// Builtin returns one of the crews shipped with the binary.
func Builtin(name string) (*Crew, error) {
	data, err := builtinFS.ReadFile(path.Join("crews", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (built-in crews: %s)", ErrCrewNotFound, name, strings.Join(BuiltinNames(), ", "))
	}
	return Parse(data)
}

// BuiltinNames lists the shipped crews, sorted.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("crews")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolve accepts either a built-in crew name or a path to a YAML file.
func Resolve(nameOrPath string) (*Crew, error) {
	if strings.HasSuffix(nameOrPath, ".yaml") || strings.HasSuffix(nameOrPath, ".yml") {
		return Load(nameOrPath)
	}
	return Builtin(nameOrPath)
}

// Validate checks that the crew can run.
func (c *Crew) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("crew: name is required"))
	}
	if len(c.Tasks) == 0 {
		errs = append(errs, fmt.Errorf("crew %s: at least one task is required", c.Name))
	}
	for i, t := range c.Tasks {
		label := t.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		if _, ok := c.Agents[t.Agent]; !ok {
			errs = append(errs, fmt.Errorf("crew %s: task %s: unknown agent %q", c.Name, label, t.Agent))
		}
		if strings.TrimSpace(t.Description) == "" {
			errs = append(errs, fmt.Errorf("crew %s: task %s: description is required", c.Name, label))
		}
		if t.OutputFile != "" && !filepath.IsLocal(t.OutputFile) {
			errs = append(errs, fmt.Errorf("crew %s: task %s: output_file must be a relative path inside the output directory", c.Name, label))
		}
	}
	return errors.Join(errs...)
}

// Providers returns the distinct providers the crew's agents use, sorted.
func (c *Crew) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range c.Agents {
		if a.Provider != "" && !seen[a.Provider] {
			seen[a.Provider] = true
			out = append(out, a.Provider)
		}
	}
	sort.Strings(out)
	return out
}

// interpolate replaces {key} with inputs[key]. Unknown placeholders are
// left as they are.
func interpolate(s string, inputs map[string]string) string {
	if len(inputs) == 0 {
		return s
	}
	pairs := make([]string, 0, 2*len(inputs))
	for k, v := range inputs {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// fileSafe strips characters that would turn an input into a path.
func fileSafe(inputs map[string]string) map[string]string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "", "..", ".")
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		out[k] = strings.TrimSpace(r.Replace(v))
	}
	return out
}
