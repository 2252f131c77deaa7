package main

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	exportProductID int64
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a product's price history to an xlsx workbook",
	Long:  "Writes one sheet per chain with the full price timeline of the given product, regular and promotional records alike.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initStoreEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		chains, err := env.Store.ListChains(ctx)
		if err != nil {
			return err
		}
		if len(chains) == 0 {
			return eris.New("chain registry is empty, run seed first")
		}

		coll := collate.New(language.Bulgarian)
		sort.Slice(chains, func(i, j int) bool {
			return coll.CompareString(chains[i].Name, chains[j].Name) < 0
		})

		file := xlsx.NewFile()
		wrote := 0
		for _, chain := range chains {
			records, err := env.Store.ListPriceHistory(ctx, exportProductID, chain.ID)
			if err != nil {
				return eris.Wrapf(err, "price history for chain %s", chain.Name)
			}
			if len(records) == 0 {
				continue
			}

			sheet, err := file.AddSheet(chain.Name)
			if err != nil {
				return eris.Wrapf(err, "add sheet %s", chain.Name)
			}

			header := sheet.AddRow()
			for _, h := range []string{"valid_from", "valid_to", "price_bgn", "price_eur", "discount"} {
				header.AddCell().Value = h
			}

			for _, rec := range records {
				row := sheet.AddRow()
				row.AddCell().Value = rec.ValidFrom.Format(time.RFC3339)
				if rec.ValidTo != nil {
					row.AddCell().Value = rec.ValidTo.Format(time.RFC3339)
				} else {
					row.AddCell().Value = ""
				}
				row.AddCell().SetFloatWithFormat(rec.PriceBGN, "0.00")
				row.AddCell().SetFloatWithFormat(rec.PriceEUR, "0.00")
				row.AddCell().SetInt(rec.Discount)
			}
			wrote++
		}

		if wrote == 0 {
			return eris.Errorf("no price history for product %d", exportProductID)
		}
		if err := file.Save(exportOut); err != nil {
			return eris.Wrapf(err, "save workbook %s", exportOut)
		}

		zap.L().Info("price history exported",
			zap.Int64("product_id", exportProductID),
			zap.Int("sheets", wrote),
			zap.String("file", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportProductID, "product", 0, "product id (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "price-history.xlsx", "output xlsx path")
	_ = exportCmd.MarkFlagRequired("product")
	rootCmd.AddCommand(exportCmd)
}
