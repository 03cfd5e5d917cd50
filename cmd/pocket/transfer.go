package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transfer",
		Aliases: []string{"transfers"},
		Short:   "Record, edit and revert transfers",
		Long: `A transfer moves money from a source to a destination. Either side may be an
account or a category: spending is account → expense category, income is
income category → account, and moving money is account → account.`,
	}

	cmd.AddCommand(transferAddCmd(), transferEditCmd(), transferRevertCmd(), transferListCmd())
	return cmd
}

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().String("to-amount", "", "Amount received by the destination when currencies differ")
	cmd.Flags().String("time", "", "When the transfer happened (default: now)")
	cmd.Flags().StringP("memo", "m", "", "Free-text note")
}

func transferAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add FROM TO AMOUNT",
		Short: "Record a transfer",
		Example: `  pocket transfer add Wallet Groceries 12.40 -m "market"
  pocket transfer add Checking Savings 500
  pocket transfer add "EUR Cash" "USD Card" 100 --to-amount 108.20`,
		Args: cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			in := storage.TransferInput{Memo: optionalString(cmd, "memo"), Time: time.Now()}

			if err := a.fillTransfer(ctx, cmd, &in, args[0], args[1], args[2]); err != nil {
				return err
			}

			t, err := a.store.CreateTransfer(ctx, in)
			if err != nil {
				return err
			}
			return a.printTransfer(ctx, "Recorded", t)
		}),
	}
	addTransferFlags(cmd)
	return cmd
}

func transferEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a transfer",
		Long:  `Replace fields of an existing transfer. Unset flags keep their current value.`,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			old, err := a.store.GetTransfer(ctx, args[0])
			if err != nil {
				return err
			}

			in := storage.TransferInput{
				Time:              old.Time,
				Memo:              old.Memo,
				SourceID:          old.Source.ID,
				DestinationID:     old.Destination.ID,
				SourceAmount:      old.SourceAmount,
				DestinationAmount: old.DestinationAmount,
			}
			if memo := optionalString(cmd, "memo"); memo != nil {
				in.Memo = memo
			}

			from, to := old.Source.ID, old.Destination.ID
			if v, _ := cmd.Flags().GetString("from"); v != "" {
				from = v
			}
			if v, _ := cmd.Flags().GetString("to"); v != "" {
				to = v
			}
			amount, _ := cmd.Flags().GetString("amount")
			if amount == "" {
				src, err := a.store.GetCurrency(ctx, a.currencyOf(ctx, old.Source))
				if err != nil {
					return err
				}
				amount = model.FormatAmount(old.SourceAmount, src.Precision)
			}
			if !cmd.Flags().Changed("to-amount") && from == old.Source.ID && to == old.Destination.ID && !cmd.Flags().Changed("amount") {
				dst, err := a.store.GetCurrency(ctx, a.currencyOf(ctx, old.Destination))
				if err != nil {
					return err
				}
				_ = cmd.Flags().Set("to-amount", model.FormatAmount(old.DestinationAmount, dst.Precision))
			}

			if err := a.fillTransfer(ctx, cmd, &in, from, to, amount); err != nil {
				return err
			}

			t, err := a.store.EditTransfer(ctx, old.ID, in)
			if err != nil {
				return err
			}
			return a.printTransfer(ctx, "Edited", t)
		}),
	}
	cmd.Flags().String("from", "", "New source account or category")
	cmd.Flags().String("to", "", "New destination account or category")
	cmd.Flags().String("amount", "", "New source amount")
	addTransferFlags(cmd)
	return cmd
}

func transferRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "revert ID",
		Aliases: []string{"delete"},
		Short:   "Delete a transfer and undo its balance effect",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.store.RevertTransfer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess("Reverted transfer "+args[0]))
			return nil
		}),
	}
}

func transferListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfers, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			filter := storage.TransferFilter{Limit: limit}

			if v, _ := cmd.Flags().GetString("since"); v != "" {
				start, err := parseTime(v)
				if err != nil {
					return err
				}
				filter.Start = &start
			}
			if v, _ := cmd.Flags().GetString("until"); v != "" {
				end, err := parseTime(v)
				if err != nil {
					return err
				}
				filter.End = &end
			}
			if v, _ := cmd.Flags().GetString("with"); v != "" {
				id, _, err := a.counterparty(ctx, v)
				if err != nil {
					return err
				}
				filter.CounterpartyID = id
			}

			transfers, err := a.store.ListTransfers(ctx, filter)
			if err != nil {
				return err
			}
			if len(transfers) == 0 {
				fmt.Fprintln(a.out, cli.FormatInfo("No transfers found"))
				return nil
			}

			table := cli.NewTable(a.out, "Time", "From", "To", "Amount", "Memo", "ID")
			for i := range transfers {
				t := &transfers[i]
				amount, err := a.transferAmount(ctx, t)
				if err != nil {
					return err
				}
				memo := ""
				if t.Memo != nil {
					memo = *t.Memo
				}
				table.Row(t.Time.Local().Format("2006-01-02 15:04"),
					a.counterpartyName(ctx, t.Source),
					a.counterpartyName(ctx, t.Destination),
					amount, memo, t.ID)
			}
			return table.Flush()
		}),
	}
	cmd.Flags().IntP("limit", "n", 50, "Maximum number of transfers (0 for all)")
	cmd.Flags().String("since", "", "Only transfers at or after this time")
	cmd.Flags().String("until", "", "Only transfers before this time")
	cmd.Flags().String("with", "", "Only transfers touching this account or category")
	return cmd
}

// fillTransfer resolves both sides and parses amounts in their currencies.
// The destination amount defaults to the source amount when both sides
// share a currency.
func (a *app) fillTransfer(ctx context.Context, cmd *cobra.Command, in *storage.TransferInput, from, to, amount string) error {
	var (
		src, dst *model.Currency
		err      error
	)
	if in.SourceID, src, err = a.counterparty(ctx, from); err != nil {
		return err
	}
	if in.DestinationID, dst, err = a.counterparty(ctx, to); err != nil {
		return err
	}
	if in.SourceAmount, err = src.Parse(amount); err != nil {
		return common.NewUserError(fmt.Sprintf("invalid %s amount %q", src.Code, amount), err)
	}

	toAmount, _ := cmd.Flags().GetString("to-amount")
	switch {
	case toAmount != "":
		if in.DestinationAmount, err = dst.Parse(toAmount); err != nil {
			return common.NewUserError(fmt.Sprintf("invalid %s amount %q", dst.Code, toAmount), err)
		}
	case src.ID == dst.ID:
		in.DestinationAmount = in.SourceAmount
	default:
		return common.NewUserError(fmt.Sprintf("%s → %s crosses currencies; pass --to-amount", src.Code, dst.Code), storage.ErrInvalidTransfer)
	}

	if v, _ := cmd.Flags().GetString("time"); v != "" {
		if in.Time, err = parseTime(v); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) transferAmount(ctx context.Context, t *model.Transfer) (string, error) {
	src, err := a.store.GetCurrency(ctx, a.currencyOf(ctx, t.Source))
	if err != nil {
		return "", err
	}
	dst, err := a.store.GetCurrency(ctx, a.currencyOf(ctx, t.Destination))
	if err != nil {
		return "", err
	}
	if dst.ID != src.ID {
		return src.Format(t.SourceAmount) + " → " + dst.Format(t.DestinationAmount), nil
	}
	return src.Format(t.SourceAmount), nil
}

func (a *app) printTransfer(ctx context.Context, verb string, t *model.Transfer) error {
	amount, err := a.transferAmount(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("%s %s: %s → %s", verb, amount,
		a.counterpartyName(ctx, t.Source), a.counterpartyName(ctx, t.Destination))))
	fmt.Fprintln(a.out, cli.SubtleStyle.Render("id: "+t.ID))
	return nil
}

// currencyOf returns the currency id of a transfer side, or "" when the side
// no longer resolves.
func (a *app) currencyOf(ctx context.Context, cp model.Counterparty) string {
	_, currencyID, err := a.store.LookupCounterparty(ctx, cp.ID)
	if err != nil {
		return ""
	}
	return currencyID
}
