package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/session"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the credential sync uses against the remote",
		Long: `Store a bearer token for the rest remote.

Pass a token handed out by the gateway operator with --token, or, when this
machine knows gateway.jwt_secret, mint one for --user directly.`,
		Example: `  pocket login --token eyJhbGciOi...
  POCKET_GATEWAY_JWT_SECRET=... pocket login --user alice`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			token, _ := cmd.Flags().GetString("token")
			user, _ := cmd.Flags().GetString("user")
			secret := []byte(a.cfg.Gateway.JWTSecret)
			now := time.Now()

			var (
				sess session.Session
				err  error
			)
			switch {
			case token != "" && len(secret) > 0:
				sess, err = session.Verify(secret, token, now)
			case token != "":
				sess, err = session.Inspect(token)
			case user != "" && len(secret) > 0:
				sess, err = session.Issue(secret, user, a.cfg.Session.TTL, now)
			case user != "":
				return common.NewUserError("minting a token needs gateway.jwt_secret; pass --token instead", common.ErrMissingConfig)
			default:
				return common.NewUserError("pass --token or --user", nil)
			}
			if err != nil {
				return common.NewUserError("login failed", err)
			}
			if sess.Expired(now) {
				return common.NewUserError("login failed", session.ErrExpired)
			}

			if err := a.store.SaveSession(cmd.Context(), sess); err != nil {
				return err
			}

			msg := "Logged in as " + sess.UserID
			if !sess.ExpiresAt.IsZero() {
				msg += " until " + sess.ExpiresAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(msg))
			return nil
		}),
	}
	cmd.Flags().String("token", "", "Bearer token issued by the gateway")
	cmd.Flags().String("user", "", "User id to mint a token for")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Long:  `Forget the stored credential. Pending changes stay in the journal and upload after the next login.`,
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.store.LoadSession(ctx); errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(a.out, cli.FormatInfo("Not logged in"))
				return nil
			}
			if err := a.store.ClearSession(ctx); err != nil {
				return err
			}

			fmt.Fprintln(a.out, cli.FormatSuccess("Logged out"))
			stats, err := a.store.Journal().Stats(ctx)
			if err != nil {
				return err
			}
			if stats.PendingTransactions > 0 {
				fmt.Fprintln(a.out, cli.FormatWarning(fmt.Sprintf("%d changes are still waiting to sync", stats.PendingTransactions)))
			}
			return nil
		}),
	}
}
