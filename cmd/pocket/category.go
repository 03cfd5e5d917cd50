package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

func categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"categories"},
		Short:   "Manage income and expense categories",
		Long: `Manage the categories transfers are booked against.

Categories can be referenced by id, by title, or as "Parent/Sub" for subcategories.`,
	}

	add := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a category",
		Example: `  pocket category add Groceries --currency EUR
  pocket category add Salary --currency EUR --income`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			code, _ := cmd.Flags().GetString("currency")
			income, _ := cmd.Flags().GetBool("income")
			color, _ := cmd.Flags().GetString("color")

			cur, err := a.currency(ctx, code)
			if err != nil {
				return err
			}
			cat, err := a.store.CreateCategory(ctx, storage.CategoryInput{
				Title:       args[0],
				CurrencyID:  cur.ID,
				ColorScheme: color,
				IsIncome:    income,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Added %s category %s", direction(cat.IsIncome), cat.Title)))
			fmt.Fprintln(a.out, cli.SubtleStyle.Render("id: "+cat.ID))
			return nil
		}),
	}
	add.Flags().StringP("currency", "c", "", "Currency code (required)")
	add.Flags().Bool("income", false, "Create an income category instead of an expense category")
	add.Flags().String("color", "", "Color scheme")
	_ = add.MarkFlagRequired("currency")

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories and their subcategories",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			all, _ := cmd.Flags().GetBool("all")

			categories, err := a.store.ListCategories(ctx, all)
			if err != nil {
				return err
			}
			if len(categories) == 0 {
				fmt.Fprintln(a.out, cli.FormatInfo("No categories yet. Add one with: pocket category add"))
				return nil
			}

			table := cli.NewTable(a.out, "Title", "Direction", "Currency", "Archived", "ID")
			for _, cat := range categories {
				cur, err := a.store.GetCurrency(ctx, cat.CurrencyID)
				if err != nil {
					return err
				}
				archived := ""
				if cat.IsArchived {
					archived = "yes"
				}
				table.Row(cat.Title, direction(cat.IsIncome), cur.Code, archived, cat.ID)

				subs, err := a.store.GetSubcategories(ctx, cat.ID)
				if err != nil {
					return err
				}
				for _, sub := range subs {
					table.Row("  └ "+sub.Title, "", "", "", sub.ID)
				}
			}
			return table.Flush()
		}),
	}
	list.Flags().BoolP("all", "a", false, "Include archived categories")

	archive := &cobra.Command{
		Use:   "archive CATEGORY",
		Short: "Archive a category and its subcategories",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			restore, _ := cmd.Flags().GetBool("restore")

			cat, err := a.category(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.ArchiveCategory(ctx, cat.ID, !restore); err != nil {
				return err
			}
			verb := "Archived"
			if restore {
				verb = "Restored"
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(verb+" "+cat.Title))
			return nil
		}),
	}
	archive.Flags().Bool("restore", false, "Unarchive instead")

	cmd.AddCommand(add, list, archive)
	return cmd
}

func subcategoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subcategory",
		Short: "Manage subcategories",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "add PARENT TITLE",
		Short:   "Add a subcategory that inherits its parent's currency and direction",
		Example: `  pocket subcategory add Groceries Bakery`,
		Args:    cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			parent, err := a.category(ctx, args[0])
			if err != nil {
				return err
			}
			sub, err := a.store.CreateSubcategory(ctx, parent.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Added %s/%s", parent.Title, sub.Title)))
			fmt.Fprintln(a.out, cli.SubtleStyle.Render("id: "+sub.ID))
			return nil
		}),
	})
	return cmd
}

func direction(income bool) string {
	if income {
		return "income"
	}
	return "expense"
}
