package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/okian/arearisk/internal/adapters/table"
	service "github.com/okian/arearisk/internal/app"
	"github.com/okian/arearisk/internal/domain/model"
	"github.com/okian/arearisk/internal/domain/prior"
	"github.com/okian/arearisk/internal/domain/ranking"
	"github.com/okian/arearisk/pkg/logger"
	"github.com/okian/arearisk/pkg/metrics"
)

const stdio = "-"

func (c *cli) inputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&c.flags.input, "input", "i", stdio, "input table (- for stdin)")
	f.StringVar(&c.flags.inputFormat, "input-format", "", "input format: csv or xlsx (default from extension)")
	f.IntVar(&c.flags.top, "top", 0, "number of highest and lowest areas to report")
}

func (c *cli) estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate every area and write the output table",
		Long: `Reads the area table, derives the prior, estimates every valid area and
writes the scaled results. Rejected and degraded areas are listed in the
manifest; the run itself only fails on configuration errors.`,
		Args: cobra.NoArgs,
		RunE: c.runEstimate,
	}
	c.inputFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&c.flags.output, "output", "o", stdio, "output table (- for stdout)")
	f.StringVar(&c.flags.outputFormat, "output-format", "", "output format: csv, json or xlsx (default from extension)")
	f.StringVar(&c.flags.manifest, "manifest", "", "write the run manifest (JSON) to this file")
	f.StringVar(&c.flags.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this file")
	return cmd
}

func (c *cli) priorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prior",
		Short: "Print the prior hyperparameters derived from configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, d, err := c.resolvePrior(cmd.Context())
			if err != nil {
				return err
			}
			return printPrior(c.stdout, p, d)
		},
	}
}

func (c *cli) rankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Estimate every area and print the highest (or lowest) ranked",
		Args:  cobra.NoArgs,
		RunE:  c.runRank,
	}
	c.inputFlags(cmd)
	cmd.Flags().BoolVar(&c.flags.bottom, "bottom", false, "print the lowest ranked areas instead of the highest")
	return cmd
}

func (c *cli) runEstimate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	report, err := c.runBatch(ctx)
	if err != nil {
		return err
	}
	scale := c.cfg.ScaleFactor

	format, err := table.ParseFormat(c.cfg.OutputFormat, c.cfg.OutputPath)
	if err != nil {
		return err
	}
	if err := c.writeTo(c.cfg.OutputPath, func(w io.Writer) error {
		return table.Write(w, format, report.Records(scale))
	}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if c.cfg.ManifestPath != "" {
		if err := c.writeTo(c.cfg.ManifestPath, func(w io.Writer) error {
			return table.WriteManifest(w, report.Manifest(scale))
		}); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	if c.cfg.MetricsPath != "" {
		if err := metrics.WriteTextfile(c.cfg.MetricsPath); err != nil {
			return err
		}
	}

	c.logExtremes(ctx, report)
	return nil
}

func (c *cli) runRank(cmd *cobra.Command, _ []string) error {
	report, err := c.runBatch(cmd.Context())
	if err != nil {
		return err
	}
	k := c.cfg.TopN
	if k < 1 {
		k = 1
	}

	r := ranking.New(report.Estimates)
	var entries []ranking.Entry
	if c.flags.bottom {
		entries, err = r.BottomN(k)
	} else {
		entries, err = r.TopN(k)
	}
	if err != nil {
		return err
	}
	return printRanking(c.stdout, entries, c.cfg.ScaleFactor)
}

// runBatch reads the configured input and estimates it against the configured prior.
func (c *cli) runBatch(ctx context.Context) (*service.Report, error) {
	p, _, err := c.resolvePrior(ctx)
	if err != nil {
		return nil, err
	}
	tbl, err := c.readInput()
	if err != nil {
		return nil, err
	}
	opts := append(service.OptionsFromConfig(c.cfg), service.WithLogger(logger.Named("service")))
	return service.New(opts...).RunTable(ctx, p, tbl)
}

func (c *cli) resolvePrior(ctx context.Context) (model.PriorHyperparameters, *prior.Derivation, error) {
	p, d, err := service.ResolvePrior(c.cfg)
	if err == nil && p.Method == model.PriorMeanStdDev {
		logger.Named("prior").Warn(ctx, "mean_stddev prior does not preserve the configured mean; prefer aggregate",
			logger.Float64("prior_mean", c.cfg.PriorMean),
			logger.Float64("prior_stddev", c.cfg.PriorStdDev),
			logger.Float64("resulting_mean", p.Mean()),
		)
	}
	return p, d, err
}

func (c *cli) readInput() (*table.Table, error) {
	path := c.cfg.InputPath
	format, err := table.ParseFormat(c.cfg.InputFormat, path)
	if err != nil {
		return nil, err
	}
	if path != stdio && path != "" {
		return table.ReadFile(path, format)
	}
	if format != table.FormatCSV {
		return nil, fmt.Errorf("%w: only csv can be read from stdin", table.ErrUnknownFormat)
	}
	return table.ReadCSV(c.stdin)
}

// writeTo runs fn against stdout for "-" and a created file otherwise.
func (c *cli) writeTo(path string, fn func(io.Writer) error) (err error) {
	if path == stdio || path == "" {
		return fn(c.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return fn(f)
}

// logExtremes logs the top_n highest and lowest areas.
func (c *cli) logExtremes(ctx context.Context, report *service.Report) {
	k := c.cfg.TopN
	if k < 1 || len(report.Estimates) == 0 {
		return
	}
	log := logger.Named("rank")
	r := ranking.New(report.Estimates)
	top, _ := r.TopN(k)
	bottom, _ := r.BottomN(k)
	for _, e := range top {
		log.Info(ctx, "highest", entryFields(e, c.cfg.ScaleFactor)...)
	}
	for _, e := range bottom {
		log.Info(ctx, "lowest", entryFields(e, c.cfg.ScaleFactor)...)
	}
}

func entryFields(e ranking.Entry, scale float64) []logger.Field {
	return []logger.Field{
		logger.Int("rank", e.Rank),
		logger.String("area_id", e.Estimate.AreaID),
		logger.Float64("mean", e.Estimate.Mean*scale),
		logger.Int64("events", e.Estimate.EventCount),
		logger.Int64("exposure", e.Estimate.ExposureCount),
	}
}

type priorOutput struct {
	Method              model.PriorMethod `json:"method"`
	Alpha0              float64           `json:"alpha0"`
	Beta0               float64           `json:"beta0"`
	Mean                float64           `json:"mean"`
	EffectiveSampleSize float64           `json:"effective_sample_size"`
	Derivation          *prior.Derivation `json:"derivation,omitempty"`
}

func printPrior(w io.Writer, p model.PriorHyperparameters, d *prior.Derivation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(priorOutput{
		Method:              p.Method,
		Alpha0:              p.Alpha0,
		Beta0:               p.Beta0,
		Mean:                p.Mean(),
		EffectiveSampleSize: p.EffectiveSampleSize(),
		Derivation:          d,
	})
}

func printRanking(w io.Writer, entries []ranking.Entry, scale float64) error {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(_, _ int) lipgloss.Style { return cell }).
		Headers("RANK", "AREA", "MEAN", "LOWER", "UPPER", "EVENTS", "EXPOSURE")

	for _, e := range entries {
		rec := e.Estimate.Record(scale)
		t.Row(
			strconv.Itoa(e.Rank),
			rec.AreaID,
			table.FormatFloat(rec.Mean),
			optional(rec.LowerBound),
			optional(rec.UpperBound),
			strconv.FormatInt(rec.EventCount, 10),
			strconv.FormatInt(rec.ExposureCount, 10),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return table.FormatFloat(*v)
}
