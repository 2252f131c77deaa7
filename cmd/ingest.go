package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a file of scraped offers",
	Long:  "Reads a JSON array of raw offers, normalizes them through the unification oracle, and records the prices in the ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		offers, err := readOffers(ingestFile)
		if err != nil {
			return err
		}
		if len(offers) == 0 {
			zap.L().Warn("offer file is empty", zap.String("file", ingestFile))
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, offers)
		if err != nil {
			return err
		}

		zap.L().Info("ingest finished",
			zap.String("file", ingestFile),
			zap.Int("offers", result.Offers),
			zap.Int("unified", result.Unified),
			zap.Int("recorded", result.Recorded),
			zap.Int("failed", result.Failed))
		return nil
	},
}

func readOffers(path string) ([]model.RawOffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read offer file %s", path)
	}
	var offers []model.RawOffer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, eris.Wrapf(err, "parse offer file %s", path)
	}
	return offers, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "JSON file with scraped offers (required)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
