package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/pipeline"
)

var (
	reportSymbol  string
	reportFetchID string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize the latest training run and flag weak models",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPipeline(false)

		rel, rows, err := p.Report(cmd.Context(), pipeline.StageRequest{
			Symbol:  reportSymbol,
			FetchID: reportFetchID,
		})
		if err != nil {
			return err
		}

		for _, r := range rows {
			zap.L().Info("model evaluated",
				zap.String("model_id", r.ModelID),
				zap.Float64("r2", r.R2),
				zap.String("status", r.Status),
			)
		}
		zap.L().Info("summary saved", zap.String("path", rel))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSymbol, "symbol", "", "stock symbol (default resolved from state)")
	reportCmd.Flags().StringVar(&reportFetchID, "fetch-id", "", "fetch identifier (default current fetch)")
	rootCmd.AddCommand(reportCmd)
}
