package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

var seedFile string

// seedData is the YAML shape of a seed file: the immutable chain registry
// plus an optional starter category vocabulary.
type seedData struct {
	Chains []struct {
		Name       string `yaml:"name"`
		CatalogURL string `yaml:"catalog_url"`
	} `yaml:"chains"`
	Categories []string `yaml:"categories"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the chain registry and category vocabulary from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(seedFile)
		if err != nil {
			return eris.Wrapf(err, "read seed file %s", seedFile)
		}
		var seed seedData
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrapf(err, "parse seed file %s", seedFile)
		}
		if len(seed.Chains) == 0 && len(seed.Categories) == 0 {
			return eris.Errorf("seed file %s has no chains and no categories", seedFile)
		}

		env, err := initStoreEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(seed.Chains) > 0 {
			chains := make([]model.StoreChain, 0, len(seed.Chains))
			for _, c := range seed.Chains {
				chains = append(chains, model.StoreChain{Name: c.Name, CatalogURL: c.CatalogURL})
			}
			n, err := env.Store.SeedChains(ctx, chains)
			if err != nil {
				return eris.Wrap(err, "seed chains")
			}
			zap.L().Info("chains seeded", zap.Int64("count", n))
		}

		for _, name := range seed.Categories {
			if _, err := env.Store.CreateCategory(ctx, name); err != nil {
				return eris.Wrapf(err, "seed category %s", name)
			}
		}
		if len(seed.Categories) > 0 {
			zap.L().Info("categories seeded", zap.Int("count", len(seed.Categories)))
		}

		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "seed.yaml", "YAML seed file")
	rootCmd.AddCommand(seedCmd)
}
