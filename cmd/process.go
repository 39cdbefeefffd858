package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/pipeline"
)

var (
	processStep    string
	processSymbol  string
	processFetchID string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a data processing step against the current fetch",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPipeline(false)
		req := pipeline.StageRequest{Symbol: processSymbol, FetchID: processFetchID}

		var (
			rel string
			err error
		)
		switch processStep {
		case "clean":
			rel, err = p.Clean(cmd.Context(), req)
		case "feature":
			rel, err = p.Feature(cmd.Context(), req)
		default:
			return eris.Errorf("unknown step %q, want clean or feature", processStep)
		}
		if err != nil {
			return err
		}

		zap.L().Info("processing complete", zap.String("step", processStep), zap.String("path", rel))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processStep, "step", "", "processing step: clean or feature")
	processCmd.Flags().StringVar(&processSymbol, "symbol", "", "stock symbol (default resolved from state)")
	processCmd.Flags().StringVar(&processFetchID, "fetch-id", "", "fetch identifier (default current fetch)")
	_ = processCmd.MarkFlagRequired("step")
	rootCmd.AddCommand(processCmd)
}
