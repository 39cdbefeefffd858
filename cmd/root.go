package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/config"
)

var (
	cfg       *config.Config
	statePath string
)

var rootCmd = &cobra.Command{
	Use:   "stockpipe",
	Short: "Daily stock price prediction pipeline",
	Long:  "Fetches daily prices from Alpha Vantage, cleans and feature-engineers the series, trains ridge models per outlier variant, and predicts the next close.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if statePath != "" {
			cfg.State.Path = statePath
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "", "state document path (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
