package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risksure/outreach-cli/internal/importer"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import leads from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		summary, err := importer.New(st).ImportFile(ctx, importFilePath)
		if err != nil {
			return eris.Wrap(err, "import leads")
		}

		zap.L().Info("import complete",
			zap.String("file", importFilePath),
			zap.Int("total", summary.Total),
			zap.Int("created", summary.Created),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("skipped", summary.Skipped),
		)
		for _, msg := range summary.Errors {
			zap.L().Warn("import row error", zap.String("error", msg))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to CSV or XLSX file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
