package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"twscraper/pkg/subscription"
	"twscraper/pkg/ui"
)

var sweepManual bool

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep <retry|archive|unlink|delete|all>",
	Short: "Run a lifecycle sweep over subscription elements",
	Long: `Run one lifecycle sweep, or all of them in order.

  retry    move errored elements back to active
  archive  move elements kept for archiving to cold storage
  unlink   detach expired elements from their subscription
  delete   remove the media of unlinked elements past the grace period

A sweep processes at most subscription.sweep_max_pages pages of
subscription.sweep_page_size elements. With --manual it keeps going until no
element matches.`,
	ValidArgs: []string{"retry", "archive", "unlink", "delete", "all"},
	Args:      cobra.ExactArgs(1),
	RunE:      runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().BoolVar(&sweepManual, "manual", false, "ignore the page limit")
	sweepCmd.Flags().Int("page-size", 0, "elements per page (default from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	kinds := subscription.SweepKinds
	if args[0] != "all" {
		kind, err := subscription.ParseSweepKind(args[0])
		if err != nil {
			return err
		}
		kinds = []subscription.SweepKind{kind}
	}

	pageSize, _ := cmd.Flags().GetInt("page-size")
	cfg, err := loadConfig(map[string]interface{}{"sweep-page-size": pageSize})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.subscriptions()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		res, err := r.Sweep(ctx, kind, sweepManual)
		if err != nil {
			return err
		}
		a.metrics.ObserveSweep(string(kind), res.Processed, res.Failed)
		rows = append(rows, []string{
			string(res.Kind),
			strconv.Itoa(res.Processed),
			strconv.Itoa(res.Failed),
			strconv.Itoa(res.Pages),
		})
	}
	ui.PrintTable([]string{"SWEEP", "PROCESSED", "FAILED", "PAGES"}, rows)
	return nil
}
