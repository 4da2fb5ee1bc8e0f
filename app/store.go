package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/entities"
)

var initStoreCmd = &cobra.Command{
	Use:   "init-store",
	Short: "Create the workbook, or add missing sheets and columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()
		app.logger.Info("workbook ready", zap.String("path", app.storage.Path()))
		return nil
	},
}

var exportReportCmd = &cobra.Command{
	Use:   "export-report [output.xlsx]",
	Short: "Write the monthly revenue breakdown to an xlsx file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := "revenue.xlsx"
		if len(args) == 1 {
			out = args[0]
		}
		app, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer app.close()

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		if err := app.comps.Reports.ExportRevenue(cmd.Context(), entities.SystemActor(), f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		app.logger.Info("revenue report written", zap.String("path", out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initStoreCmd, exportReportCmd)
}
