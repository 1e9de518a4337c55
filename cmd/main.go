package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/arearisk/internal/config"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/pkg/logger"
	"github.com/okian/arearisk/pkg/metrics"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and maps its error to an exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "arearisk:", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	var ce *model.ConfigError
	switch {
	case errors.As(err, &ce), errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrLoadConfig):
		return exitConfig
	default:
		return exitFailed
	}
}

// cli carries the loaded configuration and raw flag values between cobra hooks.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg   *config.Config
	flags flagValues
}

type flagValues struct {
	configPath   string
	logLevel     string
	logFormat    string
	workers      int
	priorMethod  string
	input        string
	inputFormat  string
	output       string
	outputFormat string
	manifest     string
	metricsFile  string
	top          int
	bottom       bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "arearisk",
		Short: "Empirical-Bayes risk estimates for rare events across small areas",
		Long: `arearisk shrinks per-area event rates toward a shared Beta prior.

Every area gets a posterior mean and an equal-tailed credible interval. Areas
with little exposure lean on the prior; areas with a lot of exposure keep
close to their own observed rate.

Configuration is layered: defaults, then the YAML file named by
AREARISK_CONFIG (or --config), then AREARISK_* environment variables, then
flags. A .env file in the working directory is read first.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.flags.logFormat, "log-format", "", "log format: text or json")
	pf.IntVar(&c.flags.workers, "workers", 0, "number of estimation workers")
	pf.StringVar(&c.flags.priorMethod, "prior-method", "", "prior derivation: aggregate, mean_stddev, explicit")

	root.AddCommand(c.estimateCmd(), c.priorCmd(), c.rankCmd())
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

// setup loads configuration, applies flag overrides and initializes logging
// and metrics.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.flags.configPath != "" {
		if err := os.Setenv(config.EnvConfig, c.flags.configPath); err != nil {
			return fmt.Errorf("set %s: %w", config.EnvConfig, err)
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.applyFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(logger.WithOutput(c.stderr), logger.WithFormat(strings.ToLower(cfg.LogFormat))); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := metrics.Configure(metricsOptions(cfg)...); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return nil
}

func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithCustomLabels(cfg.MetricsLabels),
		metrics.WithHistogramBuckets(cfg.MetricsLatencyBuckets),
	}
}

// applyFlags copies explicitly set flags over the loaded configuration.
func (c *cli) applyFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Lookup(name) != nil && f.Changed(name) {
			apply()
		}
	}
	set("log-level", func() { c.cfg.LogLevel = c.flags.logLevel })
	set("log-format", func() { c.cfg.LogFormat = c.flags.logFormat })
	set("workers", func() { c.cfg.WorkerCount = c.flags.workers })
	set("prior-method", func() { c.cfg.PriorMethod = c.flags.priorMethod })
	set("input", func() { c.cfg.InputPath = c.flags.input })
	set("input-format", func() { c.cfg.InputFormat = c.flags.inputFormat })
	set("output", func() { c.cfg.OutputPath = c.flags.output })
	set("output-format", func() { c.cfg.OutputFormat = c.flags.outputFormat })
	set("manifest", func() { c.cfg.ManifestPath = c.flags.manifest })
	set("metrics-file", func() { c.cfg.MetricsPath = c.flags.metricsFile })
	set("top", func() { c.cfg.TopN = c.flags.top })
}
