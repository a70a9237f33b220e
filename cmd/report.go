package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/signalnine/cardbench/internal/report"
	"github.com/spf13/cobra"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Summarize the batch records of a run per estimator",
		Long: "Report reads every batch record under <run-dir>/batches (default: the latest run in\n" +
			"the configured results dir) and prints, per estimator, how many batches completed,\n" +
			"timed out or crashed, their mean trial time and the largest peak memory seen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}
			return report.Generate(resolved, flagFormat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
