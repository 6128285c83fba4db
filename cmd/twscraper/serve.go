package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"twscraper/pkg/metrics"
	"twscraper/pkg/ui"
)

var serveListen string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /metrics and /healthz",
	Long: `Serve Prometheus metrics and a health check for the configured backends
until interrupted. 'twscraper run' serves the same endpoints when
metrics.enabled is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from metrics.listen)")
}

// serveMetrics serves the metrics router on addr until ctx is done
func serveMetrics(ctx context.Context, a *app, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Router(a.registry, a.healthChecks()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	a.log.InfoWithFields("Metrics server listening", map[string]interface{}{"addr": addr})

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.Metrics.Listen
	if serveListen != "" {
		addr = serveListen
	}
	ui.PrintInfo("Listening", addr)
	return serveMetrics(ctx, a, addr)
}
