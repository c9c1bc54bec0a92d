// Package main provides the CLI entry point for browserstudio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"

	"github.com/user/browserstudio/pkg/adapters/chromepage"
	"github.com/user/browserstudio/pkg/adapters/claudevision"
	"github.com/user/browserstudio/pkg/adapters/logger"
	"github.com/user/browserstudio/pkg/adapters/osfilesystem"
	"github.com/user/browserstudio/pkg/adapters/webmencoder"
	"github.com/user/browserstudio/pkg/agent"
	"github.com/user/browserstudio/pkg/config"
	"github.com/user/browserstudio/pkg/ports"
	"github.com/user/browserstudio/pkg/recording"
	"github.com/user/browserstudio/pkg/registry"
	"github.com/user/browserstudio/pkg/server"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP control plane with a managed browser."`
	Run     RunCmd     `cmd:"" help:"Run a single agent task against a URL."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// ServeCmd defines the serve subcommand.
type ServeCmd struct {
	Config string `short:"c" help:"Path to YAML configuration file."`

	// Server options (override config file)
	Port          *int    `short:"p" help:"HTTP port (default: 9222)."`
	CDPPort       *int    `help:"Chrome DevTools Protocol port (default: 9223)."`
	RecordingsDir *string `help:"Directory for recordings and agent audit trails."`

	// Browser options
	NoHeadless bool   `help:"Run browser in non-headless mode."`
	ChromePath string `help:"Path to Chrome executable (falls back to CHROME_PATH env, then system default)."`

	// Logging options
	LogLevel string `short:"l" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool   `short:"Q" help:"Suppress all log output."`
}

// RunCmd defines the run subcommand.
type RunCmd struct {
	URL  string `arg:"" help:"URL of the page to open."`
	Task string `arg:"" help:"Task for the agent to carry out."`

	MaxCycles     int      `help:"Maximum perception cycles (default: 50)."`
	ReadOnly      bool     `help:"Restrict the agent to non-mutating actions."`
	BlockedURL    []string `name:"blocked-url" help:"Regular expression for URLs the agent must not navigate to."`
	RecordingsDir string   `default:"./recordings" help:"Directory for the agent audit trail."`
	Model         string   `help:"Vision model name."`

	NoHeadless bool   `help:"Run browser in non-headless mode."`
	ChromePath string `help:"Path to Chrome executable (falls back to CHROME_PATH env, then system default)."`
	CDPPort    int    `default:"9223" help:"Chrome DevTools Protocol port."`

	LogLevel string `short:"l" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool   `short:"Q" help:"Suppress all log output."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("browserstudio"),
		kong.Description("HTTP-controlled browser with recording and a vision-driven agent."),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func newLogger(quiet bool, level string) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(level))
}

// Run executes the serve command.
func (cmd *ServeCmd) Run() error {
	cfg := config.Defaults()
	if cmd.Config != "" {
		loaded, err := config.LoadFromFile(cmd.Config)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if cmd.Port != nil {
		cfg.Port = *cmd.Port
	}
	if cmd.CDPPort != nil {
		cfg.CDPPort = *cmd.CDPPort
	}
	if cmd.RecordingsDir != nil {
		cfg.RecordingsDir = *cmd.RecordingsDir
	}
	if cmd.NoHeadless {
		cfg.Headless = false
	}
	if cmd.ChromePath != "" {
		cfg.ChromePath = cmd.ChromePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cmd.Quiet, cmd.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	browser := chromepage.NewBrowser(log)
	if err := browser.Launch(ctx, chromepage.LaunchOptions{
		Headless:       cfg.Headless,
		ChromePath:     cfg.ChromePath,
		CDPPort:        cfg.CDPPort,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
	}); err != nil {
		return err
	}
	defer browser.Close()

	reg := registry.New(
		func(ctx context.Context, width, height int) (ports.Page, error) {
			return browser.NewPage(ctx, width, height)
		},
		func(ctx context.Context, targetID string) (ports.Page, error) {
			return browser.Attach(ctx, targetID)
		},
		log)

	fs := osfilesystem.New()
	recorder := recording.NewEngine(cfg.RecordingsDir, webmencoder.NewEncoder(), fs, log)

	// A tab closed from the browser side takes its recording session with it.
	reg.SetOnPageClosed(func(name string, page ports.Page) {
		recorder.Abort(context.Background(), name, page)
	})

	agentCfg := cfg.Agent
	if agentCfg.AuditDir == "" {
		agentCfg.AuditDir = cfg.RecordingsDir
	}

	var runAgent server.RunAgentFunc
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		visionTimeout := time.Duration(cfg.Vision.TimeoutMs) * time.Millisecond
		model := claudevision.New(claudevision.Config{
			Model:   cfg.Vision.Model,
			Timeout: visionTimeout,
		}, log)
		runAgent = func(ctx context.Context, pageName, task string, runCfg agent.Config) (*agent.Result, error) {
			m := model
			// A per-run model override needs its own client.
			if runCfg.Model != "" && runCfg.Model != cfg.Vision.Model {
				m = claudevision.New(claudevision.Config{Model: runCfg.Model, Timeout: visionTimeout}, log)
			}
			return agent.NewLoop(m, reg, log, runCfg).Run(ctx, pageName, task)
		}
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, agent routes disabled")
	}

	srv := server.New(reg, recorder, log, server.Options{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		WSEndpoint:  browser.WSEndpoint,
		AgentConfig: agentCfg,
		RunAgent:    runAgent,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Warn("Interrupted, shutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown: %v", err)
	}
	reg.Shutdown(shutdownCtx)
	return nil
}

// Run executes the run command.
func (cmd *RunCmd) Run() error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY must be set")
	}

	log := newLogger(cmd.Quiet, cmd.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Interrupted, shutting down...")
		cancel()
	}()

	browser := chromepage.NewBrowser(log)
	if err := browser.Launch(ctx, chromepage.LaunchOptions{
		Headless:       !cmd.NoHeadless,
		ChromePath:     cmd.ChromePath,
		CDPPort:        cmd.CDPPort,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}); err != nil {
		return err
	}
	defer browser.Close()

	reg := registry.New(
		func(ctx context.Context, width, height int) (ports.Page, error) {
			return browser.NewPage(ctx, width, height)
		},
		func(ctx context.Context, targetID string) (ports.Page, error) {
			return browser.Attach(ctx, targetID)
		},
		log)
	defer reg.Shutdown(context.Background())

	entry, err := reg.Create(ctx, "main", 0, 0)
	if err != nil {
		return err
	}
	if err := entry.Page().Navigate(ctx, cmd.URL, 30*time.Second); err != nil {
		return fmt.Errorf("navigate to %s: %w", cmd.URL, err)
	}

	agentCfg := agent.DefaultConfig()
	agentCfg.AuditDir = cmd.RecordingsDir
	if cmd.MaxCycles > 0 {
		agentCfg.MaxCycles = cmd.MaxCycles
		agentCfg.Budget.MaxCycles = cmd.MaxCycles
	}
	agentCfg.Safety.ReadOnlyMode = cmd.ReadOnly
	agentCfg.Safety.BlockedURLPatterns = cmd.BlockedURL
	if cmd.Model != "" {
		agentCfg.Model = cmd.Model
	}

	model := claudevision.New(claudevision.Config{Model: agentCfg.Model}, log)
	result, err := agent.NewLoop(model, reg, log, agentCfg).Run(ctx, "main", cmd.Task)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Success {
		return fmt.Errorf("task failed: %s", result.Summary)
	}
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("browserstudio (Go) version %s", version))
	return nil
}
