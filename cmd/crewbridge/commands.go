package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/crewbridge/internal/bridge"
	"github.com/HendryAvila/crewbridge/internal/crew"
	"github.com/HendryAvila/crewbridge/internal/httpapi"
	"github.com/HendryAvila/crewbridge/internal/llm"
	"github.com/HendryAvila/crewbridge/internal/server"
	"github.com/HendryAvila/crewbridge/internal/tools"
)

// signalContext is cancelled on interrupt or SIGTERM, which tears down any
// provider process in flight.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ─── serve ───────────────────────────────────────────────────────────────────

func runServe(args []string) error {
	var opts ServeOptions
	if err := parseOptions("serve", &opts, args); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}

	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	return mcpserver.ServeStdio(server.New(deps))
}

// ─── serve-http ──────────────────────────────────────────────────────────────

func runServeHTTP(args []string) error {
	var opts ServeHTTPOptions
	if err := parseOptions("serve-http", &opts, args); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Token != "" {
		cfg.HTTP.Token = opts.Token
	}
	if cfg.HTTP.Token == "" {
		log.Println("WARN: no HTTP token set; endpoints are open. Set CREWBRIDGE_HTTP_TOKEN to secure them.")
	}

	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	var history httpapi.History
	if deps.Journal != nil {
		history = deps.Journal
	}
	api := httpapi.New(httpapi.Config{Token: cfg.HTTP.Token}, deps.Registry, history)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("WARNING: http shutdown: %v", err)
		}
	}()

	log.Printf("Starting crewbridge HTTP API on %s (providers: %s)", cfg.HTTP.Addr, strings.Join(deps.Registry.Names(), ", "))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ─── tools / call ────────────────────────────────────────────────────────────

func runTools(args []string) error {
	var opts ToolsOptions
	if err := parseOptions("tools", &opts, args); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	caller, err := deps.Registry.Get(opts.Args.Provider)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	list := caller.ListCapabilities(ctx)
	fmt.Println(list.JSON())
	if !list.Success {
		return errFailed
	}
	return nil
}

func runCall(args []string) error {
	var opts CallOptions
	if err := parseOptions("call", &opts, args); err != nil {
		return err
	}

	raw := []byte(opts.Args.Arguments)
	if opts.Args.Arguments == "-" {
		var err error
		if raw, err = io.ReadAll(os.Stdin); err != nil {
			return fmt.Errorf("read arguments from stdin: %w", err)
		}
	}
	arguments, err := bridge.DecodeArguments(raw)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	caller, err := deps.Registry.Get(opts.Args.Provider)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	result := caller.Invoke(ctx, opts.Args.Operation, arguments)
	fmt.Println(result.JSON())
	if !result.Success {
		return errFailed
	}
	return nil
}

// ─── history ─────────────────────────────────────────────────────────────────

func runHistory(args []string) error {
	var opts HistoryOptions
	if err := parseOptions("history", &opts, args); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	if deps.Journal == nil {
		return errors.New("journal is disabled")
	}

	switch {
	case opts.Stats:
		stats, err := deps.Journal.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)

	case opts.Runs:
		runs, err := deps.Journal.RecentRuns(opts.Limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No crew runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			status := "ok"
			if !r.Success {
				status = "FAILED: " + r.Error
			}
			fmt.Printf("%s  %-10s %-40q %6dms  %s\n", r.CreatedAt, r.Crew, r.Topic, r.DurationMs, status)
		}
		return nil

	default:
		invs, err := deps.Journal.RecentInvocations(opts.Provider, opts.Limit)
		if err != nil {
			return err
		}
		if len(invs) == 0 {
			fmt.Println("No calls recorded yet.")
			return nil
		}
		for _, inv := range invs {
			fmt.Println(tools.FormatInvocation(inv))
		}
		return nil
	}
}

// ─── run ─────────────────────────────────────────────────────────────────────

func runCrew(args []string) error {
	var opts RunOptions
	if err := parseOptions("run", &opts, args); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.CommonOptions)
	if err != nil {
		return err
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	c, err := crew.Resolve(opts.Args.Crew)
	if err != nil {
		return err
	}
	model, err := llm.New(cfg.LLM.Options())
	if err != nil {
		return err
	}

	deps, cleanup := server.Wire(cfg)
	defer cleanup()

	for _, name := range c.Providers() {
		if _, ok := deps.Registry.Lookup(name); !ok {
			return fmt.Errorf("crew %s needs provider %q, which is not configured", c.Name, name)
		}
	}

	inputs := map[string]string{"topic": strings.TrimSpace(opts.Topic)}
	for k, v := range opts.Inputs {
		inputs[k] = v
	}

	runner := &crew.Runner{
		LLM:       model,
		Providers: deps.Registry,
		OutputDir: cfg.OutputDir,
		OnStep:    printStep,
	}
	if deps.Journal != nil {
		runner.Journal = deps.Journal
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Fprintf(os.Stderr, "Running crew %s on %q\n", c.Name, inputs["topic"])
	res, runErr := runner.Run(ctx, c, inputs)

	if opts.JSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else if res.Final != "" {
		fmt.Println(res.Final)
	}
	if runErr != nil {
		return runErr
	}
	fmt.Fprintf(os.Stderr, "Crew %s finished in %s\n", c.Name, res.Duration.Round(time.Millisecond))
	return nil
}

func printStep(s crew.Step) {
	prefix := fmt.Sprintf("[%d/%d] %s", s.Index, s.Total, s.Agent)
	switch s.Kind {
	case crew.StepTaskStart:
		fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, s.Task)
	case crew.StepToolCall:
		fmt.Fprintf(os.Stderr, "%s: calling %s\n", prefix, s.Detail)
	case crew.StepToolResult:
		fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, s.Detail)
	case crew.StepTaskDone:
		if s.Detail != "" {
			fmt.Fprintf(os.Stderr, "%s: done, wrote %s\n", prefix, s.Detail)
		} else {
			fmt.Fprintf(os.Stderr, "%s: done\n", prefix)
		}
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
