package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"twscraper/internal/syncer"
	"twscraper/pkg/ui"
)

var (
	syncResumeJob string
	syncDue       bool
	syncLimit     int
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [subscription-id]",
	Short: "Crawl subscriptions and retain their new media",
	Long: `Crawl a subscription's media timeline, create an element for every new
post and retain its media.

With --due every subscription whose requery time has passed is synced one
after another. Use 'twscraper run' to sync continuously with several workers.`,
	Example: `  # Sync one subscription
  twscraper sync 12

  # Finish a sync that was interrupted, from its recorded progress
  twscraper sync 12 --resume 0b6f7c1e-4a52-4b59-9c54-2f1e0e1c9d11

  # Sync everything that is due
  twscraper sync --due`,
	Args: func(cmd *cobra.Command, args []string) error {
		if syncDue {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncResumeJob, "resume", "", "reconcile the ids an interrupted job recorded")
	syncCmd.Flags().BoolVar(&syncDue, "due", false, "sync every due subscription")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 20, "maximum subscriptions with --due")
	syncCmd.Flags().StringVar(&checkpointFlag, "checkpoint-backend", "", "job progress backend (file, memory, postgres)")
	syncCmd.Flags().StringVar(&timestampFlag, "timestamp-backend", "", "request gate backend (memory, redis, postgres)")
}

func printReport(handle string, r *syncer.Report) {
	ui.PrintHighlight("@" + handle)
	ui.PrintInfo("Outcome", r.Outcome)
	ui.PrintInfo("Job", r.JobID)
	ui.PrintInfo("Discovered", strconv.Itoa(r.Discovered))
	ui.PrintInfo("Linked", strconv.Itoa(r.Linked))
	if r.Skipped > 0 {
		ui.PrintInfo("Without media", strconv.Itoa(r.Skipped))
	}
	if r.Failed > 0 {
		ui.PrintWarning("Failed", strconv.Itoa(r.Failed))
	}
	if r.NothingFound {
		ui.PrintWarning("Nothing found", "the media timeline was empty")
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(crawlFlags())
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.syncer()
	if err != nil {
		return err
	}

	if syncDue {
		subs, err := s.Store().DueSubscriptions(ctx, time.Now(), syncLimit)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			ui.PrintLine("Nothing is due")
			return nil
		}
		var failed []error
		for _, sub := range subs {
			report, err := s.Sync(ctx, sub)
			if report != nil {
				printReport(sub.Handle, report)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ui.PrintError("Sync failed", err)
				failed = append(failed, fmt.Errorf("@%s: %w", sub.Handle, err))
			}
		}
		return errors.Join(failed...)
	}

	id, err := parseID(args[0], "subscription")
	if err != nil {
		return err
	}
	sub, err := s.Store().GetSubscription(ctx, id)
	if err != nil {
		return err
	}

	var report *syncer.Report
	if syncResumeJob != "" {
		report, err = s.Resume(ctx, sub, syncResumeJob)
	} else {
		report, err = s.Sync(ctx, sub)
	}
	if report != nil {
		printReport(sub.Handle, report)
	}
	return err
}
