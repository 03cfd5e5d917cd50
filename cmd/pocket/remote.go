package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/config"
	"github.com/Veraticus/pocket-ledger/internal/remote/postgres"
)

func remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the remote store",
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Install the remote schema and procedures into Postgres",
		Long: `Create the ledger tables and the apply_batch, create_transfer, edit_transfer
and revert_transfer procedures in the Postgres database at remote.database_url.
Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config, _ []string) error {
			url := cfg.Remote.DatabaseURL
			if v, _ := cmd.Flags().GetString("database-url"); v != "" {
				url = v
			}
			if url == "" {
				return common.NewUserError("remote.database_url is not set", common.ErrMissingConfig)
			}

			ctx := cmd.Context()
			backend, err := postgres.Connect(ctx, url, slog.Default().With("component", "remote"))
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Remote schema is up to date"))
			return nil
		}),
	}
	migrate.Flags().String("database-url", "", "Postgres URL (default: remote.database_url)")

	cmd.AddCommand(migrate)
	return cmd
}
