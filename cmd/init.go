package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlab/stockpipe/internal/model"
	"github.com/marketlab/stockpipe/internal/state"
)

var initSymbol string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the state document with the default project layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()

		fields := map[string]any{
			"project_root":        cfg.State.ProjectRoot,
			"log_dir":             "logs",
			"plots_dir":           "plots",
			"models_dir":          "models",
			"raw_data_dir":        "data",
			"processed_data_dir":  "data",
			"predictions_dir":     "data/predictions",
			"outliers_dir":        "data/outliers",
			"docs_data_eval_dir":  "docs/data_evaluation",
			"docs_model_eval_dir": "docs/model_evaluation",
			"features":            []string{"prev_close", "volume", "ma5"},
			"target":              "next_close",
		}
		if initSymbol != "" {
			fields["stock_symbol"] = initSymbol
		}

		if err := st.Update(state.Patch{
			CurrentFetch:  &model.FetchDescriptor{},
			CurrentModels: map[string]string{},
			Fields:        fields,
		}); err != nil {
			return err
		}

		zap.L().Info("state document initialized", zap.String("path", st.Path()))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initSymbol, "symbol", "", "default stock symbol")
	rootCmd.AddCommand(initCmd)
}
