package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transfers from bank files",
	}
	cmd.AddCommand(importOFXCmd())
	return cmd
}

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ofx FILES...",
		Short: "Import transactions from OFX/QFX files",
		Long: `Book every statement line as a transfer between an account and a category.

Debits move money from the account to the expense category, credits from the
income category to the account. Each line gets an id derived from its FITID,
so importing the same file twice books nothing new.`,
		Example: `  # Import single file
  pocket import ofx ~/Downloads/checking_jan.qfx --account Checking --expense Uncategorized --income Salary

  # Import all QFX files in a directory
  pocket import ofx ~/Downloads/*.qfx -a Checking -e Uncategorized -i Salary --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(runImportOFX),
	}

	cmd.Flags().StringP("account", "a", "", "Account the statement belongs to (required)")
	cmd.Flags().StringP("expense", "e", "", "Category debits are booked against (required)")
	cmd.Flags().StringP("income", "i", "", "Category credits are booked from (required)")
	cmd.Flags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.Flags().BoolP("progress", "p", false, "Show a progress bar")
	cmd.Flags().Bool("sync", false, "Upload the imported transfers right away")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("expense")
	_ = cmd.MarkFlagRequired("income")
	return cmd
}

func runImportOFX(cmd *cobra.Command, a *app, args []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	showProgress, _ := cmd.Flags().GetBool("progress")
	syncAfter, _ := cmd.Flags().GetBool("sync")

	var writes int
	a.store.OnWrite(func() { writes++ })

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	accountRef, _ := cmd.Flags().GetString("account")
	expenseRef, _ := cmd.Flags().GetString("expense")
	incomeRef, _ := cmd.Flags().GetString("income")

	account, err := a.account(ctx, accountRef)
	if err != nil {
		return err
	}
	expense, err := a.category(ctx, expenseRef)
	if err != nil {
		return err
	}
	income, err := a.category(ctx, incomeRef)
	if err != nil {
		return err
	}
	opts := ofx.Options{
		AccountID:         account.ID,
		ExpenseCategoryID: expense.ID,
		IncomeCategoryID:  income.ID,
		DryRun:            dryRun,
	}

	logger := slog.Default().With("component", "ofx")
	parser := ofx.NewParser(logger)
	importer := ofx.NewImporter(a.store, logger)

	slog.Info("Importing OFX files", "file_count", len(files), "dry_run", dryRun)

	var total ofx.Result
	for _, path := range files {
		statements, err := parseOFXFile(cmd, parser, path)
		if err != nil {
			return err
		}

		for _, stmt := range statements {
			var progress func(done, total int)
			if showProgress {
				bar := progressbar.NewOptions(len(stmt.Lines),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription(filepath.Base(path)),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				progress = func(done, _ int) { _ = bar.Set(done) }
			}

			res, err := importer.Import(ctx, stmt, opts, progress)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			total.Created += res.Created
			total.Skipped += res.Skipped
			total.Zero += res.Zero
		}
	}

	verb := "Imported"
	if dryRun {
		verb = "Would import"
	}
	fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("%s %d transfers into %s", verb, total.Created, account.Title)))
	if total.Skipped > 0 {
		fmt.Fprintln(a.out, cli.FormatInfo(fmt.Sprintf("%d already imported", total.Skipped)))
	}
	if total.Zero > 0 {
		fmt.Fprintln(a.out, cli.FormatInfo(fmt.Sprintf("%d zero-amount lines ignored", total.Zero)))
	}

	if !syncAfter || writes == 0 {
		return nil
	}
	sched, release, err := a.newScheduler(ctx, a.syncOptions(), nil)
	if err != nil {
		return err
	}
	defer release()
	summary, err := sched.RunOnce(ctx)
	return a.reportSync(cmd, summary, err)
}

func parseOFXFile(cmd *cobra.Command, parser *ofx.Parser, path string) ([]ofx.Statement, error) {
	file, err := os.Open(path) //nolint:gosec // paths come from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	statements, err := parser.Parse(cmd.Context(), file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return statements, nil
}

// expandFiles resolves glob patterns; plain paths that exist pass through.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err == nil {
				files = append(files, pattern)
			} else {
				slog.Warn("No files found matching pattern", "pattern", pattern)
			}
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}
