package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/signalnine/cardbench/internal/estimator"
	"github.com/signalnine/cardbench/internal/runner"
)

var (
	flagBuildEstimator string
	flagParallel       int
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build estimator summaries and report how long each took",
		Long: "Build runs each estimator's summarize command once, in-process and without a\n" +
			"deadline, and prints the elapsed seconds. The summary is written next to the\n" +
			"data graph as <data>.<estimator>.p<ratio>.s<seed>.",
		RunE: runBuild,
	}
	cmd.Flags().StringVar(&flagBuildEstimator, "estimator", "", "build a single estimator (default all)")
	cmd.Flags().Int64Var(&flagSeed, "seed", 0, "override seed")
	cmd.Flags().Float64Var(&flagRatio, "ratio", 0, "override summary sampling ratio")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max summaries built concurrently (timings contend above 1)")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	ests := cfg.Estimators
	if flagBuildEstimator != "" {
		e, err := cfg.Estimator(flagBuildEstimator)
		if err != nil {
			return err
		}
		ests = []config.Estimator{*e}
	}

	tasks := make([]runner.Task, len(ests))
	elapsed := make([]time.Duration, len(ests))
	for i, e := range ests {
		est, err := estimator.New(e)
		if err != nil {
			return err
		}
		p := estimator.Params{
			Method:  e.Name,
			Data:    cfg.Data,
			Summary: estimator.SummaryPath(cfg.Data, e.Name, cfg.Ratio, cfg.Seed),
			Ratio:   cfg.Ratio,
			Seed:    cfg.Seed,
		}
		tasks[i] = func(ctx context.Context) error {
			d, err := runner.TimeSummary(ctx, func(ctx context.Context) error {
				return est.Summarize(ctx, p)
			})
			elapsed[i] = d
			return err
		}
	}

	errs := runner.RunPool(cmd.Context(), flagParallel, tasks)
	var failed int
	for i, e := range ests {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s error: %v\n", e.Name, errs[i])
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %g\n", e.Name, elapsed[i].Seconds())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d summaries failed", failed, len(ests))
	}
	return nil
}
