package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cert-cli",
	Short: "Pest-control certificate analytics",
	Long:  "Aggregates treatment certificates into dashboard views, geocodes a city/neighborhood heatmap, and manages certificate PDFs and spreadsheet uploads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
