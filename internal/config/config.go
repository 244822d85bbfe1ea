// Package config loads crewbridge settings: the provider table, bridge
// timeouts, journal location, HTTP surface and LLM backend.
//
// Precedence is defaults < YAML file < process environment. The process
// environment is consulted once, here, at construction time; provider
// processes never see it directly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/llm"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Config is the root of the configuration tree.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Bridge    BridgeConfig              `yaml:"bridge"`
	Journal   JournalConfig             `yaml:"journal"`
	HTTP      HTTPConfig                `yaml:"http"`
	LLM       LLMConfig                 `yaml:"llm"`
	// OutputDir is where crew tasks with an output_file write their result.
	OutputDir string `yaml:"output_dir"`
}

// ProviderConfig describes how to launch one tool provider. Env keys
// declared here are also the names looked up in the process environment
// by ApplyEnv.
type ProviderConfig struct {
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Passthrough []string          `yaml:"passthrough"`
	Dir         string            `yaml:"dir"`
}

type BridgeConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	KillGrace      time.Duration `yaml:"kill_grace"`
	Verbose        bool          `yaml:"verbose"`
}

type JournalConfig struct {
	DataDir  string `yaml:"data_dir"`
	Disabled bool   `yaml:"disabled"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// Token, when set, is required as a bearer token on every route but /health.
	Token string `yaml:"token"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ─── Defaults ────────────────────────────────────────────────────────────────

// defaultPassthrough is what a docker client needs to find the daemon.
var defaultPassthrough = []string{"PATH", "HOME", "DOCKER_HOST", "DOCKER_CONFIG"}

// DefaultDir returns ~/.crewbridge.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crewbridge")
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns the built-in provider presets and defaults.
func DefaultConfig() *Config {
	b := bridge.DefaultConfig()
	return &Config{
		Providers: map[string]ProviderConfig{
			"obsidian": {
				Command: "docker",
				Args: []string{"run", "-i", "--rm", "--network=host",
					"-e", "OBSIDIAN_HOST", "-e", "OBSIDIAN_API_KEY", "mcp/obsidian"},
				Env: map[string]string{
					"OBSIDIAN_HOST":    "http://localhost:27124",
					"OBSIDIAN_API_KEY": "",
				},
				Passthrough: append([]string(nil), defaultPassthrough...),
			},
			"notion": {
				Command: "docker",
				Args:    []string{"run", "--rm", "-i", "-e", "NOTION_TOKEN", "mcp/notion"},
				Env: map[string]string{
					"NOTION_TOKEN": "",
				},
				Passthrough: append([]string(nil), defaultPassthrough...),
			},
		},
		Bridge: BridgeConfig{
			ConnectTimeout: b.ConnectTimeout,
			CallTimeout:    b.CallTimeout,
			KillGrace:      b.KillGrace,
		},
		Journal: JournalConfig{DataDir: DefaultDir()},
		HTTP:    HTTPConfig{Addr: ":8080"},
		LLM: LLMConfig{
			BaseURL:     "https://api.cerebras.ai/v1",
			Model:       "llama3.3-70b",
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		},
		OutputDir: "output",
	}
}

// ─── Loading ─────────────────────────────────────────────────────────────────

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultPath(), which may be absent. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays process-wide settings. lookup is normally
// os.LookupEnv. Every Env key declared by a provider is resolved from the
// process environment when set there, which is how OBSIDIAN_API_KEY or
// NOTION_TOKEN reach their provider without entering the config file.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) string {
		if v, ok := lookup(name); ok {
			return strings.TrimSpace(v)
		}
		return ""
	}

	for name, p := range c.Providers {
		for key := range p.Env {
			if v := get(key); v != "" {
				p.Env[key] = v
			}
		}
		c.Providers[name] = p
	}

	if v := get("CREWBRIDGE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := get("CREWBRIDGE_HTTP_TOKEN"); v != "" {
		c.HTTP.Token = v
	}
	if v := get("CREWBRIDGE_DATA_DIR"); v != "" {
		c.Journal.DataDir = v
	}
	if v := get("CREWBRIDGE_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := get("CREWBRIDGE_NO_JOURNAL"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CREWBRIDGE_NO_JOURNAL: %w", err)
		}
		c.Journal.Disabled = disabled
	}
	if v := get("CREWBRIDGE_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CREWBRIDGE_VERBOSE: %w", err)
		}
		c.Bridge.Verbose = verbose
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"CREWBRIDGE_CONNECT_TIMEOUT", &c.Bridge.ConnectTimeout},
		{"CREWBRIDGE_CALL_TIMEOUT", &c.Bridge.CallTimeout},
		{"CREWBRIDGE_KILL_GRACE", &c.Bridge.KillGrace},
	}
	for _, d := range durations {
		v := get(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	// LLM_API_KEY wins over the vendor-specific name.
	for _, name := range []string{"CEREBRAS_API_KEY", "LLM_API_KEY"} {
		if v := get(name); v != "" {
			c.LLM.APIKey = v
		}
	}
	if v := get("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := get("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.ProviderNames() {
		if strings.TrimSpace(c.Providers[name].Command) == "" {
			errs = append(errs, fmt.Errorf("provider %q: command is required", name))
		}
	}
	if c.Bridge.ConnectTimeout < 0 || c.Bridge.CallTimeout < 0 || c.Bridge.KillGrace < 0 {
		errs = append(errs, errors.New("bridge: timeouts must not be negative"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm: temperature %.2f out of range [0, 2]", c.LLM.Temperature))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
}

// ProviderNames returns the configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ─── Conversion ──────────────────────────────────────────────────────────────

// Provider converts the entry into a bridge.Provider. Unset Env values are
// dropped so the child never sees an empty credential.
func (p ProviderConfig) Provider(name string) bridge.Provider {
	env := make(map[string]string, len(p.Env))
	for k, v := range p.Env {
		if v != "" {
			env[k] = v
		}
	}
	return bridge.Provider{
		Name:        name,
		Command:     p.Command,
		Args:        append([]string(nil), p.Args...),
		Env:         env,
		Passthrough: append([]string(nil), p.Passthrough...),
		Dir:         p.Dir,
	}
}

// Options converts the lifecycle settings for bridge.New.
func (b BridgeConfig) Options(version string) bridge.Config {
	return bridge.Config{
		ConnectTimeout: b.ConnectTimeout,
		CallTimeout:    b.CallTimeout,
		KillGrace:      b.KillGrace,
		ClientName:     "crewbridge",
		ClientVersion:  version,
		Verbose:        b.Verbose,
	}
}

// Options converts the backend settings for llm.New.
func (l LLMConfig) Options() llm.Config {
	return llm.Config{
		BaseURL:     l.BaseURL,
		Model:       l.Model,
		APIKey:      l.APIKey,
		Temperature: l.Temperature,
		Timeout:     l.Timeout,
	}
}
