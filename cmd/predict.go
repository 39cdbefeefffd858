package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/pipeline"
)

var (
	predictSymbol  string
	predictFetchID string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the next close with every current model",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPipeline(false)

		rel, preds, err := p.Predict(cmd.Context(), pipeline.StageRequest{
			Symbol:  predictSymbol,
			FetchID: predictFetchID,
		})
		if err != nil {
			return err
		}

		for _, pr := range preds {
			zap.L().Info("prediction",
				zap.String("variant", string(pr.ModelVariant)),
				zap.Time("future_date", pr.FutureDate),
				zap.Float64("predicted_next_close", pr.PredictedNextClose),
			)
		}
		zap.L().Info("predictions saved", zap.String("path", rel))
		return nil
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictSymbol, "symbol", "", "stock symbol (default resolved from state)")
	predictCmd.Flags().StringVar(&predictFetchID, "fetch-id", "", "fetch identifier (default current fetch)")
	rootCmd.AddCommand(predictCmd)
}
