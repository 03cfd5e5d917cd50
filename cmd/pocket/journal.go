package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/journal"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the upload journal",
		Long: `Every local change is journaled and uploaded in order by pocket sync.

Transactions the remote rejects as invalid are moved to the dead-letter
list where they can be inspected, requeued or purged.`,
	}

	cmd.AddCommand(journalStatusCmd(), journalPruneCmd(), journalDeadLettersCmd(), journalRequeueCmd(), journalPurgeCmd())
	return cmd
}

func journalStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending uploads and dead letters",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			verbose, _ := cmd.Flags().GetBool("verbose")
			j := a.store.Journal()

			stats, err := j.Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, cli.FormatTitle(cli.SyncIcon+" Journal"))
			if stats.PendingTransactions == 0 {
				fmt.Fprintln(a.out, cli.FormatSuccess("Everything is synced"))
			} else {
				fmt.Fprintln(a.out, cli.FormatInfo(fmt.Sprintf("%d pending (%d changes)", stats.PendingTransactions, stats.PendingEntries)))
			}
			if stats.DeadLetters > 0 {
				fmt.Fprintln(a.out, cli.FormatWarning(fmt.Sprintf("%d rejected; see pocket journal dead-letters", stats.DeadLetters)))
			}

			if !verbose || stats.PendingTransactions == 0 {
				return nil
			}
			pending, err := j.Pending(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out)
			table := cli.NewTable(a.out, "Tx", "Created", "Changes")
			for _, tx := range pending {
				table.Row(tx.ID, tx.CreatedAt.Local().Format("2006-01-02 15:04:05"), describeEntries(tx.Entries))
			}
			return table.Flush()
		}),
	}
	cmd.Flags().BoolP("verbose", "v", false, "List every pending transaction")
	return cmd
}

func journalPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop pending edits that change nothing",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			n, err := a.store.Journal().PruneEmptyPatches(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Pruned %d empty changes", n)))
			return nil
		}),
	}
}

func journalDeadLettersCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"rejected"},
		Short:   "List transactions the remote rejected",
		Args:    cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			letters, err := a.store.Journal().DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if len(letters) == 0 {
				fmt.Fprintln(a.out, cli.FormatSuccess("No rejected transactions"))
				return nil
			}

			table := cli.NewTable(a.out, "ID", "Discarded", "Code", "Message", "Changes")
			for _, dl := range letters {
				table.Row(dl.ID, dl.DiscardedAt.Local().Format("2006-01-02 15:04:05"),
					cli.ErrorStyle.Render(dl.ErrorCode), dl.ErrorMessage, describeEntries(dl.Entries))
			}
			return table.Flush()
		}),
	}
}

func journalRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ID",
		Short: "Move a rejected transaction back to the end of the upload queue",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("invalid dead letter id %q", args[0]), err)
			}
			txID, err := a.store.Journal().Requeue(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Requeued dead letter %d as transaction %d", id, txID)))
			return nil
		}),
	}
}

func journalPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete rejected transactions for good",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			yes, _ := cmd.Flags().GetBool("yes")

			var cutoff time.Time
			question := "Delete all rejected transactions?"
			if olderThan > 0 {
				cutoff = time.Now().Add(-olderThan)
				question = fmt.Sprintf("Delete rejected transactions older than %s?", olderThan)
			}

			if !yes {
				ok, err := cli.NewNonBlockingReader(cmd.InOrStdin()).Confirm(ctx, a.out, question)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, cli.FormatInfo("Nothing deleted"))
					return nil
				}
			}

			n, err := a.store.Journal().PurgeDeadLetters(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Purged %d dead letters", n)))
			return nil
		}),
	}
	cmd.Flags().Duration("older-than", 0, "Only purge dead letters discarded longer ago than this")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// describeEntries summarizes entries as "PUT accounts ×2, PATCH categories".
func describeEntries(entries []journal.Entry) string {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[string(e.Op)+" "+e.Table]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k
		if counts[k] > 1 {
			parts[i] += fmt.Sprintf(" ×%d", counts[k])
		}
	}
	return strings.Join(parts, ", ")
}
