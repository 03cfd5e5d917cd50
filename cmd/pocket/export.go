package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/export"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger",
	}

	xlsx := &cobra.Command{
		Use:   "xlsx FILE",
		Short: "Write accounts, categories and transfers to an Excel workbook",
		Example: `  pocket export xlsx ledger.xlsx
  pocket export xlsx q1.xlsx --since 2024-01-01 --until 2024-04-01`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var opts export.Options
			if v, _ := cmd.Flags().GetString("since"); v != "" {
				start, err := parseTime(v)
				if err != nil {
					return err
				}
				opts.Start = &start
			}
			if v, _ := cmd.Flags().GetString("until"); v != "" {
				end, err := parseTime(v)
				if err != nil {
					return err
				}
				opts.End = &end
			}

			file, err := os.Create(args[0]) //nolint:gosec // path comes from the command line
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}

			exporter := export.NewExporter(a.store, slog.Default().With("component", "export"))
			if err := exporter.Write(cmd.Context(), file, opts); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}

			fmt.Fprintln(a.out, cli.FormatSuccess("Exported ledger to "+args[0]))
			return nil
		}),
	}
	xlsx.Flags().String("since", "", "Only transfers at or after this time")
	xlsx.Flags().String("until", "", "Only transfers before this time")

	cmd.AddCommand(xlsx)
	return cmd
}
