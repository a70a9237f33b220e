package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cardbench",
		Short:        "Benchmark harness for graph cardinality estimators",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "cardbench.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	return root
}
