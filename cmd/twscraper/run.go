package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"twscraper/internal/jobs"
	"twscraper/internal/syncer"
	"twscraper/pkg/ui"
)

var runWorkers int

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync subscriptions and run sweeps until interrupted",
	Long: `Run the scheduler: every jobs.sync_every the due subscriptions are queued
for the worker pool, and every jobs.sweep_every one pass of all lifecycle
sweeps is queued.

Workers share one request gate, so adding workers never raises the request
rate above rate_limit.min_interval. Use a redis or postgres timestamp backend
when several processes run against the same account.`,
	Example: `  # Run with four workers and metrics on :9090
  TWSCRAPER_METRICS_LISTEN=:9090 twscraper run --workers 4`,
	Args: cobra.NoArgs,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "concurrent jobs (default from config)")
	runCmd.Flags().StringVar(&checkpointFlag, "checkpoint-backend", "", "job progress backend (file, memory, postgres)")
	runCmd.Flags().StringVar(&timestampFlag, "timestamp-backend", "", "request gate backend (memory, redis, postgres)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	flags := crawlFlags()
	flags["workers"] = runWorkers
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.syncer()
	if err != nil {
		return err
	}
	r, err := a.subscriptions()
	if err != nil {
		return err
	}

	ui.PrintBanner()
	ui.PrintInfo("Workers", strconv.Itoa(cfg.Jobs.Workers))
	ui.PrintInfo("Sync every", cfg.Jobs.SyncEvery.String())
	ui.PrintInfo("Sweep every", cfg.Jobs.SweepEvery.String())

	g, ctx := errgroup.WithContext(ctx)
	pool := jobs.NewPool(ctx, cfg.Jobs, a.log, jobs.WithObserver(a.metrics))
	scheduler := syncer.NewScheduler(s, r, pool, cfg.Jobs, a.metrics, a.log)

	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	if cfg.Metrics.Enabled {
		ui.PrintInfo("Metrics", cfg.Metrics.Listen)
		g.Go(func() error {
			return serveMetrics(ctx, a, cfg.Metrics.Listen)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	ui.PrintSuccess("Scheduler stopped")
	return nil
}
