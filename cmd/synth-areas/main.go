package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	service "github.com/okian/arearisk/internal/app"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/internal/synth"
	"github.com/okian/arearisk/pkg/logger"
)

func main() {
	def := synth.DefaultConfig()
	var (
		areas    = flag.Int("areas", def.Areas, "Number of areas to generate")
		seed     = flag.Uint64("seed", def.Seed, "Random seed; the same seed reproduces the table")
		alpha    = flag.Float64("alpha", def.Alpha, "Alpha of the Beta distribution of true rates")
		beta     = flag.Float64("beta", def.Beta, "Beta of the Beta distribution of true rates")
		median   = flag.Float64("median-exposure", def.MedianExposed, "Median exposure per area")
		sigma    = flag.Float64("sigma", def.Sigma, "Log-scale spread of exposure")
		zero     = flag.Float64("zero-fraction", def.ZeroFraction, "Share of areas with zero exposure")
		output   = flag.String("output", "-", "Output CSV file (- for stdout)")
		doScore  = flag.Bool("score", false, "Estimate the table under the generating prior and log raw vs shrunk RMSE")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(*logLevel); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	log := logger.Named("synth")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg := synth.Config{
		Areas:         *areas,
		Seed:          *seed,
		Alpha:         *alpha,
		Beta:          *beta,
		MedianExposed: *median,
		Sigma:         *sigma,
		ZeroFraction:  *zero,
	}
	code := run(ctx, log, cfg, *output, *doScore)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, log logger.Logger, cfg synth.Config, output string, doScore bool) int {
	generated, err := synth.Generate(ctx, cfg)
	if err != nil {
		log.Error(ctx, "generation failed", logger.Error(err))
		return 1
	}

	if err := writeAreas(output, os.Stdout, generated); err != nil {
		log.Error(ctx, "write failed", logger.String("path", output), logger.Error(err))
		return 1
	}
	log.Info(ctx, "wrote synthetic areas",
		logger.Int("areas", len(generated)),
		logger.String("output", output),
	)

	if !doScore {
		return 0
	}
	acc, err := score(ctx, cfg, generated)
	if err != nil {
		log.Error(ctx, "scoring failed", logger.Error(err))
		return 1
	}
	log.Info(ctx, "shrinkage accuracy",
		logger.Int("areas", acc.Areas),
		logger.Float64("raw_rmse", acc.RawRMSE),
		logger.Float64("shrunk_rmse", acc.ShrunkRMSE),
	)
	return 0
}

// writeAreas writes the CSV to stdout for "-" and to a created file
// otherwise. The file is closed on every path and its error kept.
func writeAreas(path string, stdout io.Writer, areas []synth.Area) (err error) {
	if path == "-" || path == "" {
		return synth.WriteCSV(stdout, areas)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return synth.WriteCSV(f, areas)
}

// score estimates the generated areas under the prior they were drawn from.
func score(ctx context.Context, cfg synth.Config, areas []synth.Area) (synth.Accuracy, error) {
	p := model.PriorHyperparameters{Alpha0: cfg.Alpha, Beta0: cfg.Beta, Method: model.PriorExplicit}
	report, err := service.New(service.WithLogger(logger.Named("service"))).Run(ctx, p, synth.Observations(areas))
	if err != nil {
		return synth.Accuracy{}, fmt.Errorf("estimate synthetic areas: %w", err)
	}
	return synth.Score(areas, report.Estimates), nil
}
