package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/pipeline"
)

var (
	trainSymbol  string
	trainFetchID string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train ridge models on the processed data and publish them",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPipeline(false)

		res, err := p.Train(cmd.Context(), pipeline.StageRequest{
			Symbol:  trainSymbol,
			FetchID: trainFetchID,
		})
		if err != nil {
			return err
		}

		for _, m := range res.Models {
			zap.L().Info("model published",
				zap.String("model_id", m.ModelID),
				zap.String("variant", string(m.OutlierHandling)),
				zap.Float64("rmse", m.Metrics.RMSE),
				zap.Float64("mae", m.Metrics.MAE),
				zap.Float64("r2", m.Metrics.R2),
			)
		}
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainSymbol, "symbol", "", "stock symbol (default resolved from state)")
	trainCmd.Flags().StringVar(&trainFetchID, "fetch-id", "", "fetch identifier (default current fetch)")
	rootCmd.AddCommand(trainCmd)
}
