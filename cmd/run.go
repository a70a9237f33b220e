package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/signalnine/cardbench/internal/estimator"
	"github.com/signalnine/cardbench/internal/logging"
	"github.com/signalnine/cardbench/internal/metrics"
	"github.com/signalnine/cardbench/internal/result"
	"github.com/signalnine/cardbench/internal/runner"
)

var (
	flagEstimator   string
	flagQuery       string
	flagTrials      int
	flagSeed        int64
	flagRatio       float64
	flagDeadline    time.Duration
	flagMetricsFile string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Estimate every query with one estimator, each trial in an isolated worker",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagEstimator, "estimator", "", "estimator name from the config (required)")
	cmd.Flags().StringVar(&flagQuery, "query", "", "query file, or a directory searched for *.txt queries (required)")
	cmd.Flags().IntVar(&flagTrials, "trials", 0, "override trial count")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "override base seed")
	cmd.Flags().Float64Var(&flagRatio, "ratio", 0, "override summary sampling ratio")
	cmd.Flags().DurationVar(&flagDeadline, "deadline", 0, "override per-trial deadline")
	cmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")
	cmd.MarkFlagRequired("estimator")
	cmd.MarkFlagRequired("query")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	est, err := cfg.Estimator(flagEstimator)
	if err != nil {
		return err
	}
	queries, err := collectQueries(flagQuery)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger.Info("starting run",
		zap.String("run_id", runID),
		zap.String("run_dir", runDir),
		zap.String("estimator", est.Name),
		zap.Int("queries", len(queries)),
		zap.Int("trials", cfg.Trials),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ex, err := runner.Open(runner.Options{
		Deadline:       cfg.Deadline,
		PollInterval:   cfg.PollInterval,
		WorkerLogLevel: cfg.Logging.Level,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer ex.Close()

	m := metrics.New()
	params := estimator.Params{
		Method:  est.Name,
		Data:    cfg.Data,
		Summary: estimator.SummaryPath(cfg.Data, est.Name, cfg.Ratio, cfg.Seed),
		Ratio:   cfg.Ratio,
		Seed:    cfg.Seed,
	}

	var failed int
	for _, q := range queries {
		params.Query = q
		rec, err := runQuery(ctx, ex, m, cfg, *est, params)
		if err != nil {
			return err
		}
		rec.RunID = runID
		if err := result.WriteBatch(runDir, rec); err != nil {
			logger.Error("writing batch record", zap.String("query", q), zap.Error(err))
		}
		m.RecordBatch(est.Name, rec.Status, rec.PeakMemoryBytes)
		if rec.Status == result.StatusCompleted {
			fmt.Fprintln(cmd.OutOrStdout(), formatSuccess(rec))
		} else {
			failed++
			fmt.Fprintln(cmd.ErrOrStderr(), formatFailure(rec))
		}
		if ctx.Err() != nil {
			return fmt.Errorf("run interrupted: %w", ctx.Err())
		}
	}

	if flagMetricsFile != "" {
		if err := m.WriteFile(flagMetricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	logger.Info("run finished", zap.Int("queries", len(queries)), zap.Int("failed", failed))
	return nil
}

// runQuery runs one batch and returns its record. Failed batches are recorded,
// not returned; only failures that make further queries pointless are errors.
func runQuery(ctx context.Context, ex *runner.Executor, m *metrics.Metrics, cfg *config.Config, est config.Estimator, p estimator.Params) (*result.BatchRecord, error) {
	payload, err := estimator.Job{Estimator: est, Params: p}.Payload()
	if err != nil {
		return nil, err
	}
	rec := &result.BatchRecord{
		Estimator: est.Name,
		Query:     p.Query,
		Trials:    cfg.Trials,
		Seed:      cfg.Seed,
		Ratio:     cfg.Ratio,
	}
	summary, err := ex.RunBatch(ctx, runner.Batch{
		Work:     estimator.WorkName,
		Payload:  payload,
		Trials:   cfg.Trials,
		BaseSeed: cfg.Seed,
		OnTrial:  m.ObserveTrial(est.Name),
	})
	rec.Apply(summary, err)
	if rec.Status == result.StatusError {
		return nil, fmt.Errorf("query %s: %w", p.Query, err)
	}
	return rec, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if flagTrials > 0 {
		cfg.Trials = flagTrials
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if flagRatio > 0 {
		cfg.Ratio = flagRatio
	}
	if flagDeadline > 0 {
		cfg.SetDeadline(flagDeadline)
	}
}

// collectQueries returns path itself, or every *.txt file below it in lexical
// order when path is a directory.
func collectQueries(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var queries []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".txt" {
			queries = append(queries, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no *.txt queries under %s", path)
	}
	sort.Strings(queries)
	return queries, nil
}

func formatSuccess(rec *result.BatchRecord) string {
	return fmt.Sprintf("%s %g,%g", rec.Query, rec.MeanEstimate, rec.MeanElapsedS)
}

func formatFailure(rec *result.BatchRecord) string {
	switch rec.Status {
	case result.StatusTimeout:
		return fmt.Sprintf("%s error: timeout", rec.Query)
	case result.StatusSignaled:
		return fmt.Sprintf("%s error with signal %d", rec.Query, rec.Signal)
	case result.StatusNoSamples:
		return fmt.Sprintf("%s error: no usable estimates", rec.Query)
	default:
		return fmt.Sprintf("%s error: %s", rec.Query, rec.Error)
	}
}
