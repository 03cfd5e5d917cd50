package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/pocket-ledger/internal/cli"
	"github.com/Veraticus/pocket-ledger/internal/common"
	"github.com/Veraticus/pocket-ledger/internal/service"
	"github.com/Veraticus/pocket-ledger/internal/upload"
	"github.com/Veraticus/pocket-ledger/internal/worker"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload pending changes to the remote",
		Long: `Upload the journal to the remote store, oldest change first.

A transaction the remote cannot accept right now (offline, timeout, server
error) stays in the journal and is retried on the next pass. A transaction
the remote rejects as invalid is moved to the dead-letter list.

With --watch, pocket keeps syncing on the configured interval and retries
failed passes with exponential backoff until interrupted.`,
		Args: cobra.NoArgs,
		RunE: withApp(runSync),
	}

	cmd.Flags().BoolP("watch", "w", false, "Keep syncing in the background until interrupted")
	cmd.Flags().BoolP("progress", "p", false, "Show a progress bar")
	cmd.Flags().Duration("timeout", 0, "Bound for a single pass (default: sync.timeout)")
	cmd.Flags().Duration("interval", 0, "Time between passes with --watch (default: sync.interval)")
	return cmd
}

func runSync(cmd *cobra.Command, a *app, _ []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	showProgress, _ := cmd.Flags().GetBool("progress")

	opts := a.syncOptions()
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		opts.Timeout = v
	}
	if v, _ := cmd.Flags().GetDuration("interval"); v > 0 {
		opts.Interval = v
	}

	stats, err := a.store.Journal().Stats(cmd.Context())
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := interrupts.HandleInterrupts(cmd.Context(), stats.PendingTransactions > 0)
	defer stop()

	var bar *progressbar.ProgressBar
	if showProgress && !watch && stats.PendingTransactions > 0 {
		bar = progressbar.NewOptions(stats.PendingTransactions,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Uploading"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	progress := func(res upload.Result) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if res.Status == upload.StatusDiscarded {
			common.LogInfo("transaction rejected by remote", common.Fields{
				"tx_id":   res.TxID,
				"entries": res.Entries,
			})
		}
	}

	sched, release, err := a.newScheduler(ctx, opts, progress)
	if err != nil {
		return err
	}
	defer release()

	if watch {
		fmt.Fprintln(a.out, cli.FormatInfo(fmt.Sprintf("Syncing every %s. Press Ctrl+C to stop.", opts.Interval)))
		err := sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	summary, err := sched.RunOnce(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	return a.reportSync(cmd, summary, err)
}

func (a *app) syncOptions() service.SyncOptions {
	return service.SyncOptions{
		Interval:   a.cfg.Sync.Interval,
		Timeout:    a.cfg.Sync.Timeout,
		BackoffMin: a.cfg.Sync.BackoffMin,
		BackoffMax: a.cfg.Sync.BackoffMax,
	}
}

// newScheduler builds the upload worker for the configured remote. The
// returned func releases the remote.
func (a *app) newScheduler(ctx context.Context, opts service.SyncOptions, progress func(upload.Result)) (*worker.Scheduler, func(), error) {
	backend, release, err := a.backend(ctx)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.Default().With("component", "sync")
	connector := upload.NewConnector(a.store.Journal(), backend, logger)
	sched, err := worker.NewScheduler(connector, opts, worker.WithLogger(logger), worker.WithProgress(progress))
	if err != nil {
		release()
		return nil, nil, err
	}
	return sched, release, nil
}

func (a *app) reportSync(cmd *cobra.Command, summary upload.Summary, passErr error) error {
	if summary.Applied > 0 {
		fmt.Fprintln(a.out, cli.FormatSuccess(fmt.Sprintf("Uploaded %d transactions in %d remote calls", summary.Applied, summary.RemoteCalls)))
	}
	if summary.Discarded > 0 {
		fmt.Fprintln(a.out, cli.FormatWarning(fmt.Sprintf("%d transactions rejected; see pocket journal dead-letters", summary.Discarded)))
	}

	// The command context may be gone after an interrupt.
	stats, err := a.store.Journal().Stats(context.WithoutCancel(cmd.Context()))
	if err != nil {
		return err
	}

	if passErr != nil {
		common.LogDebug("sync pass failed", common.Fields{"error": passErr})
		fmt.Fprintln(a.out, cli.FormatWarning(fmt.Sprintf("%d pending; will retry on the next sync (%v)", stats.PendingTransactions, passErr)))
		return nil
	}
	if stats.PendingTransactions == 0 && summary.Applied == 0 && summary.Discarded == 0 {
		fmt.Fprintln(a.out, cli.FormatSuccess("Nothing to sync"))
	}
	return nil
}
