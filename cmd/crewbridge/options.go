package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/HendryAvila/crewbridge/internal/config"
)

// CommonOptions are accepted by every command.
type CommonOptions struct {
	Config  string `short:"f" long:"config" description:"config YAML path (default ~/.crewbridge/config.yaml)"`
	Verbose bool   `short:"V" long:"verbose" description:"log provider lifecycle and stderr"`
}

type ServeOptions struct {
	CommonOptions
}

type ServeHTTPOptions struct {
	CommonOptions
	Addr  string `long:"addr" description:"listen address (overrides http.addr)"`
	Token string `long:"token" description:"bearer token (overrides http.token; prefer CREWBRIDGE_HTTP_TOKEN)"`
}

type ToolsOptions struct {
	CommonOptions
	Args struct {
		Provider string `positional-arg-name:"provider" required:"true"`
	} `positional-args:"yes"`
}

type CallOptions struct {
	CommonOptions
	Args struct {
		Provider  string `positional-arg-name:"provider" required:"true"`
		Operation string `positional-arg-name:"operation" required:"true"`
		Arguments string `positional-arg-name:"json"`
	} `positional-args:"yes"`
}

type HistoryOptions struct {
	CommonOptions
	Provider string `short:"p" long:"provider" description:"only calls to this provider"`
	Limit    int    `short:"n" long:"limit" default:"20" description:"maximum entries"`
	Runs     bool   `long:"runs" description:"show crew runs instead of calls"`
	Stats    bool   `long:"stats" description:"show aggregate counts"`
}

type RunOptions struct {
	CommonOptions
	Topic     string            `short:"t" long:"topic" required:"true" description:"what the crew works on"`
	Inputs    map[string]string `short:"i" long:"input" description:"extra input as key:value (repeatable)"`
	OutputDir string            `short:"o" long:"output" description:"directory for task output files (overrides output_dir)"`
	JSON      bool              `long:"json" description:"print the whole run result as JSON"`
	Args      struct {
		Crew string `positional-arg-name:"crew" description:"built-in crew name or path to a crew YAML" required:"true"`
	} `positional-args:"yes"`
}

// parseOptions parses args into opts. Help requests come back as a
// *flags.Error of type flags.ErrHelp.
func parseOptions(command string, opts any, args []string) error {
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "crewbridge " + command
	_, err := parser.ParseArgs(args)
	return err
}

// loadConfig applies defaults, the config file and the environment, in
// that order, then validates.
func loadConfig(common CommonOptions) (*config.Config, error) {
	cfg, err := config.Load(common.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if common.Verbose {
		cfg.Bridge.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
