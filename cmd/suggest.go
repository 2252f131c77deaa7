package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/suggest"
)

var suggestCartID int64

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Print the cheapest store options for a cart",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initStoreEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		options, err := env.Suggest.CheapestStore(ctx, suggestCartID)
		switch {
		case eris.Is(err, store.ErrNotFound):
			return eris.Errorf("cart %d not found", suggestCartID)
		case eris.Is(err, suggest.ErrNoViableStore):
			return eris.Errorf("no store prices any item of cart %d", suggestCartID)
		case err != nil:
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(options)
	},
}

func init() {
	suggestCmd.Flags().Int64Var(&suggestCartID, "cart", 0, "cart id (required)")
	_ = suggestCmd.MarkFlagRequired("cart")
	rootCmd.AddCommand(suggestCmd)
}
