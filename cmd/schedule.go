package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleInterval time.Duration

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the ingestion loop on an interval",
	Long:  "Watches the spool directory for offer files dropped by the scrapers and ingests each on a fixed interval. Processed files are renamed with a .done suffix.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		interval := scheduleInterval
		if interval == 0 {
			interval = time.Duration(cfg.Schedule.IntervalMins) * time.Minute
		}

		zap.L().Info("ingestion scheduler started",
			zap.Duration("interval", interval),
			zap.String("spool_dir", cfg.Schedule.SpoolDir))

		// First pass immediately, then on the ticker.
		drainSpool(ctx, env)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				zap.L().Info("ingestion scheduler stopped")
				return nil
			case <-ticker.C:
				drainSpool(ctx, env)
			}
		}
	},
}

// drainSpool ingests every pending offer file. A failing file is left in
// place for the next cycle; the rest still get processed.
func drainSpool(ctx context.Context, env *appEnv) {
	files, err := pendingOfferFiles(cfg.Schedule.SpoolDir)
	if err != nil {
		zap.L().Error("spool scan failed", zap.String("dir", cfg.Schedule.SpoolDir), zap.Error(err))
		return
	}
	if len(files) == 0 {
		zap.L().Debug("spool empty")
		return
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		offers, err := readOffers(path)
		if err != nil {
			zap.L().Error("unreadable offer file", zap.String("file", path), zap.Error(err))
			continue
		}

		result, err := env.Pipeline.Run(ctx, offers)
		if err != nil {
			zap.L().Error("scheduled ingestion failed", zap.String("file", path), zap.Error(err))
			continue
		}

		if err := os.Rename(path, path+".done"); err != nil {
			zap.L().Warn("could not mark offer file done", zap.String("file", path), zap.Error(err))
		}
		zap.L().Info("offer file ingested",
			zap.String("file", path),
			zap.Int("offers", result.Offers),
			zap.Int("recorded", result.Recorded),
			zap.Int("failed", result.Failed))
	}
}

func pendingOfferFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleInterval, "interval", 0, "ingestion interval (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}
