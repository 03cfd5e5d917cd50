package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/config"
	"github.com/Veraticus/pocket-ledger/internal/gateway"
	"github.com/Veraticus/pocket-ledger/internal/remote"
	"github.com/Veraticus/pocket-ledger/internal/remote/memory"
	"github.com/Veraticus/pocket-ledger/internal/remote/postgres"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC gateway the rest remote talks to",
		Long: `Serve the apply_batch and transfer procedures over HTTP with bearer-token auth.

Requests run against the Postgres database at remote.database_url. With
--memory the gateway keeps everything in process, which is useful for trying
pocket out and for tests; nothing survives a restart.`,
		Args: cobra.NoArgs,
		RunE: withConfig(func(cmd *cobra.Command, cfg *config.Config, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			addr := cfg.Gateway.Addr
			if v, _ := cmd.Flags().GetString("addr"); v != "" {
				addr = v
			}
			inMemory, _ := cmd.Flags().GetBool("memory")

			if cfg.Gateway.JWTSecret == "" {
				return common.NewUserError("gateway.jwt_secret is not set", gateway.ErrNoSecret)
			}

			var backend remote.Backend
			switch {
			case inMemory:
				backend = memory.New()
				fmt.Fprintln(out, cli.FormatWarning("Serving an in-memory remote; data is lost on exit"))
			case cfg.Remote.DatabaseURL != "":
				pg, err := postgres.Connect(ctx, cfg.Remote.DatabaseURL, slog.Default().With("component", "remote"))
				if err != nil {
					return err
				}
				defer pg.Close()
				backend = pg
			default:
				return common.NewUserError("remote.database_url is not set; pass --memory to serve without Postgres", common.ErrMissingConfig)
			}

			srv, err := gateway.New(backend, []byte(cfg.Gateway.JWTSecret), slog.Default())
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatInfo("Listening on "+addr))
			if err := srv.Run(ctx, addr); err != nil {
				common.LogError(err, "gateway stopped", common.Fields{"addr": addr})
				return err
			}
			return nil
		}),
	}
	cmd.Flags().String("addr", "", "Listen address (default: gateway.addr)")
	cmd.Flags().Bool("memory", false, "Serve an in-memory remote instead of Postgres")
	return cmd
}
