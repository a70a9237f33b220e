package cmd

import (
	"fmt"
	"strings"

	"github.com/signalnine/cardbench/internal/config"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured estimators",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Data: %s (trials: %d, ratio: %g, deadline: %s)\n", cfg.Data, cfg.Trials, cfg.Ratio, cfg.Deadline)
			fmt.Println("\nEstimators:")
			for _, e := range cfg.Estimators {
				fmt.Printf("  - %s [%s] %s\n", e.Name, e.Kind, describe(e))
			}
			return nil
		},
	}
}

func describe(e config.Estimator) string {
	switch e.Kind {
	case config.KindContainer:
		return fmt.Sprintf("(image: %s) %s", e.Image, strings.Join(e.RunCmd, " "))
	case config.KindConstant:
		return fmt.Sprintf("(value: %g)", e.Value)
	default:
		return strings.Join(e.RunCmd, " ")
	}
}
