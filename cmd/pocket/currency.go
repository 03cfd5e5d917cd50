package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

func currencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "currency",
		Short: "Manage currencies",
	}

	add := &cobra.Command{
		Use:   "add CODE",
		Short: "Add a currency",
		Example: `  pocket currency add EUR --symbol € --precision 2
  pocket currency add JPY --symbol ¥ --precision 0`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			precision, _ := cmd.Flags().GetInt("precision")
			if symbol == "" {
				symbol = strings.ToUpper(args[0])
			}

			cur, err := a.store.CreateCurrency(cmd.Context(), storage.CurrencyInput{
				Code:      args[0],
				Symbol:    symbol,
				Precision: precision,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Added currency %s (%s, %d decimals)", cur.Code, cur.Symbol, cur.Precision)))
			return nil
		}),
	}
	add.Flags().String("symbol", "", "Display symbol (defaults to the code)")
	add.Flags().Int("precision", 2, "Number of minor-unit digits")

	list := &cobra.Command{
		Use:   "list",
		Short: "List currencies",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			currencies, err := a.store.ListCurrencies(cmd.Context())
			if err != nil {
				return err
			}
			if len(currencies) == 0 {
				fmt.Fprintln(a.out, cli.FormatInfo("No currencies yet. Add one with: pocket currency add EUR"))
				return nil
			}

			table := cli.NewTable(a.out, "Code", "Symbol", "Precision", "ID")
			for _, cur := range currencies {
				table.Row(cur.Code, cur.Symbol, cur.Precision, cur.ID)
			}
			return table.Flush()
		}),
	}

	cmd.AddCommand(add, list)
	return cmd
}
