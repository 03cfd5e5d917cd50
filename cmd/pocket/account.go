package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"accounts"},
		Short:   "Manage accounts",
		Long: `Manage the accounts that hold your money.

Accounts can be referenced by id or by title (case-insensitive).`,
	}

	cmd.AddCommand(
		accountAddCmd(),
		accountListCmd(),
		accountRenameCmd(),
		accountArchiveCmd("archive", true),
		accountArchiveCmd("unarchive", false),
		accountSetBalanceCmd(),
		accountMoveCmd(),
	)
	return cmd
}

func accountAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add TITLE",
		Short:   "Add an account",
		Example: `  pocket account add Wallet --currency EUR --balance 42.50`,
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			code, _ := cmd.Flags().GetString("currency")
			balance, _ := cmd.Flags().GetString("balance")
			kind, _ := cmd.Flags().GetString("type")
			color, _ := cmd.Flags().GetString("color")

			cur, err := a.currency(ctx, code)
			if err != nil {
				return err
			}
			minor, err := parseBalance(cur, balance)
			if err != nil {
				return err
			}

			acct, err := a.store.CreateAccount(ctx, storage.AccountInput{
				Title:       args[0],
				CurrencyID:  cur.ID,
				ColorScheme: color,
				Type:        model.AccountType(kind),
				Balance:     minor,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Added account %s with %s", acct.Title, cur.Format(acct.Balance))))
			fmt.Fprintln(a.out, cli.SubtleStyle.Render("id: "+acct.ID))
			return nil
		}),
	}
	cmd.Flags().StringP("currency", "c", "", "Currency code (required)")
	cmd.Flags().String("balance", "0", "Opening balance")
	cmd.Flags().String("type", string(model.AccountTypeRegular), "Account type (regular, savings)")
	cmd.Flags().String("color", "", "Color scheme")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func accountListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			all, _ := cmd.Flags().GetBool("all")

			accounts, err := a.store.ListAccounts(ctx, all)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(a.out, cli.FormatInfo("No accounts yet. Add one with: pocket account add"))
				return nil
			}

			table := cli.NewTable(a.out, "Title", "Type", "Balance", "Archived", "ID")
			for _, acct := range accounts {
				cur, err := a.store.GetCurrency(ctx, acct.CurrencyID)
				if err != nil {
					return err
				}
				balance := cur.Format(acct.Balance)
				if acct.Balance < 0 {
					balance = cli.NegativeStyle.Render(balance)
				}
				archived := ""
				if acct.IsArchived {
					archived = "yes"
				}
				table.Row(acct.Title, acct.Type, balance, archived, acct.ID)
			}
			return table.Flush()
		}),
	}
	cmd.Flags().BoolP("all", "a", false, "Include archived accounts")
	return cmd
}

func accountRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ACCOUNT TITLE",
		Short: "Rename an account",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			acct, err := a.account(ctx, args[0])
			if err != nil {
				return err
			}
			title := args[1]
			if _, err := a.store.UpdateAccount(ctx, acct.ID, storage.AccountUpdate{Title: &title}); err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Renamed %s to %s", acct.Title, title)))
			return nil
		}),
	}
}

func accountArchiveCmd(use string, archived bool) *cobra.Command {
	short := "Archive an account"
	if !archived {
		short = "Restore an archived account"
	}
	return &cobra.Command{
		Use:   use + " ACCOUNT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			acct, err := a.account(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.ArchiveAccount(ctx, acct.ID, archived); err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("%sd %s", capitalize(use), acct.Title)))
			return nil
		}),
	}
}

func accountSetBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "set-balance ACCOUNT AMOUNT",
		Short:   "Correct an account balance without a transfer",
		Example: `  pocket account set-balance Wallet 12.30`,
		Args:    cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			acct, err := a.account(ctx, args[0])
			if err != nil {
				return err
			}
			cur, err := a.store.GetCurrency(ctx, acct.CurrencyID)
			if err != nil {
				return err
			}
			minor, err := parseBalance(cur, args[1])
			if err != nil {
				return err
			}
			if err := a.store.SetAccountBalance(ctx, acct.ID, minor); err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("%s: %s → %s", acct.Title, cur.Format(acct.Balance), cur.Format(minor))))
			return nil
		}),
	}
}

func accountMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move ACCOUNT",
		Short: "Reorder an account",
		Long:  `Place ACCOUNT directly after the account given by --after, or first when --after is omitted.`,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			acct, err := a.account(ctx, args[0])
			if err != nil {
				return err
			}
			afterID := ""
			if after, _ := cmd.Flags().GetString("after"); after != "" {
				other, err := a.account(ctx, after)
				if err != nil {
					return err
				}
				afterID = other.ID
			}
			if _, err := a.store.MoveAccount(ctx, acct.ID, afterID); err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess("Moved "+acct.Title))
			return nil
		}),
	}
	cmd.Flags().String("after", "", "Account to place this one after")
	return cmd
}
