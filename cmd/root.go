package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "promomania",
	Short: "Retail price-offer ingestion and cheapest-store suggestion",
	Long:  "Normalizes scraped promotional brochures from Bulgarian store chains into a shared catalog, keeps a temporal price ledger, and answers which chain is cheapest for a shopping cart.",
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
