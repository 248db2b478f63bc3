// Command automation runs language-model-backed task batches: plan, review,
// execute, review, summarize.
//
// Usage:
//
//	automation run --tasks tasks/example_tasks.json
//	automation run --config config.yaml --run-name nightly
//	automation validate --config config.yaml
//	automation skills
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/agent"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/config"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/logger"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/observability"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/report"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/roles"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/skill"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run a batch of tasks through the workflow."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`
	Skills   SkillsCmd   `cmd:"" help:"List the registered skills."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)." default:"simple"`
}

// loadConfig reads the config file when given, or falls back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("automation version %s\n", version)
	return nil
}

// ValidateCmd validates the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	cfg, err := config.LoadFromFile(cli.Config)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration is valid (provider: %s, model: %s)\n", cfg.LLM.Type, cfg.LLM.Model)
	return nil
}

// SkillsCmd lists the registered skills.
type SkillsCmd struct{}

func (c *SkillsCmd) Run() error {
	registry := skill.NewRegistry()
	if err := skill.RegisterBuiltins(registry); err != nil {
		return err
	}
	for _, info := range registry.Catalog() {
		fmt.Printf("%s\t%s\n", info.Name, info.Description)
	}
	return nil
}

// RunCmd runs a batch of tasks through the workflow.
type RunCmd struct {
	Tasks      string `help:"Path to a JSON file describing the tasks to execute." type:"path" default:"tasks/example_tasks.json"`
	RunName    string `name:"run-name" help:"Name used for log files and reports." default:"automation-run"`
	ReportsDir string `name:"reports-dir" help:"Directory for Markdown reports (overrides config)."`
	HTML       bool   `help:"Additionally render each report to HTML."`

	Provider string `help:"LLM provider (openai, anthropic, ollama); overrides config."`
	Model    string `help:"Model name; overrides config."`
	APIKey   string `name:"api-key" help:"API key (defaults to environment variable)."`

	MaxPlanRevisions int `name:"max-plan-revisions" help:"Plan revision bound; overrides config." default:"-1"`
	MaxStepRetries   int `name:"max-step-retries" help:"Step retry bound; overrides config." default:"-1"`

	MetricsAddr string `name:"metrics-addr" help:"Expose Prometheus metrics on this address."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.GetLogger().Info("shutting down")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)

	tasks, err := workflow.LoadTasks(c.Tasks)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks defined in the provided task file.")
		return nil
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = config.GetProviderAPIKey(cfg.LLM.Type)
	}
	provider, err := llms.NewProviderFromConfig(&cfg.LLM)
	if err != nil {
		return err
	}
	defer provider.Close()

	skills := skill.NewRegistry()
	if err := skill.RegisterBuiltins(skills); err != nil {
		return err
	}

	factoryOpts := []roles.FactoryOption{
		roles.WithSkillCatalog(skills.Catalog()),
	}
	if cfg.Workflow.ExchangeTimeout > 0 {
		factoryOpts = append(factoryOpts, roles.WithExchangeTimeout(time.Duration(cfg.Workflow.ExchangeTimeout)*time.Second))
	}
	// Accurate token accounting is best-effort: the tiktoken encoding may not
	// be available offline, and providers report usage themselves anyway.
	if counter, err := agent.NewTokenCounter(cfg.LLM.Model); err == nil {
		factoryOpts = append(factoryOpts, roles.WithTokenCounter(counter))
	}
	factory, err := roles.NewFactory(provider, factoryOpts...)
	if err != nil {
		return err
	}

	transcript, err := report.NewTranscriptLog(cfg.Logs.Dir, c.RunName)
	if err != nil {
		return err
	}
	defer transcript.Close()
	console := report.NewConsolePrinter(os.Stdout)

	metrics := observability.NoopMetrics()
	if cfg.Metrics.Enabled {
		if metrics, err = observability.InitMetrics(); err != nil {
			return err
		}
		if server := metrics.Serve(cfg.Metrics.Addr); server != nil {
			defer func() { _ = server.Shutdown(context.Background()) }()
			logger.GetLogger().Info("metrics listening", "addr", cfg.Metrics.Addr)
		}
	}

	wf, err := workflow.New(factory, skills,
		workflow.WithBounds(cfg.Workflow.MaxPlanRevisions, cfg.Workflow.MaxStepRetries),
		workflow.WithMetrics(metrics),
		workflow.WithLogger(logger.GetLogger()),
		workflow.WithObserver(transcript.Observer()),
		workflow.WithObserver(console.Observer()),
	)
	if err != nil {
		return err
	}

	writer := report.NewWriter(cfg.Reports.Dir, cfg.Reports.HTML)

	records := wf.RunAll(ctx, tasks)

	failed := 0
	for _, record := range records {
		path, err := writer.Write(record)
		if err != nil {
			logger.GetLogger().Error("failed to write report", "task", record.Task.Name, "error", err)
		} else {
			fmt.Printf("%-12s %s -> %s\n", record.Status, record.Task.Name, path)
		}
		if record.Status == workflow.StatusFailed {
			failed++
		}
	}
	if err := transcript.Flush(); err != nil {
		logger.GetLogger().Error("failed to write transcript", "error", err)
	}
	fmt.Printf("\n%d/%d tasks completed, transcript: %s\n", len(records)-failed, len(records), transcript.Path())

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(records))
	}
	return nil
}

// applyOverrides folds CLI flags into the loaded config.
func (c *RunCmd) applyOverrides(cfg *config.Config) {
	if c.Provider != "" {
		cfg.LLM.Type = c.Provider
		cfg.LLM.Model = ""
		cfg.LLM.Host = ""
		cfg.LLM.SetDefaults()
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	if c.APIKey != "" {
		cfg.LLM.APIKey = c.APIKey
	}
	if c.ReportsDir != "" {
		cfg.Reports.Dir = c.ReportsDir
	}
	if c.HTML {
		cfg.Reports.HTML = true
	}
	if c.MaxPlanRevisions >= 0 {
		cfg.Workflow.MaxPlanRevisions = c.MaxPlanRevisions
	}
	if c.MaxStepRetries >= 0 {
		cfg.Workflow.MaxStepRetries = c.MaxStepRetries
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = c.MetricsAddr
	}
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("automation"),
		kong.Description("Multi-role LLM automation workflow: plan, execute, review, summarize."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
