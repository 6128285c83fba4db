package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"twscraper/pkg/config"
	"twscraper/pkg/logger"
	"twscraper/pkg/ui"
)

var (
	// Version information
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile  string
	logLevel    string
	quiet       bool
	accountName string
	databaseDSN string
	redisAddr   string
	assetRoot   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twscraper",
	Short: "Track x.com accounts and keep their media",
	Long: `twscraper crawls x.com media timelines and search results through the web
GraphQL API, and keeps a subscription per tracked account.

Every discovered post becomes a subscription element that is retained, unlinked,
archived or deleted by periodic sweeps according to its keep decision.

Features:
  - Resumable crawls with per-job progress records
  - A shared request gate so several workers respect one request interval
  - Credentials kept in the system keychain or an encrypted file
  - PostgreSQL, Redis and Kafka backends, Prometheus metrics`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
	},
}

// Execute adds all child commands to the root command and runs it. An
// interrupt cancels the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.twscraper.yaml or ~/.config/twscraper/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	rootCmd.PersistentFlags().StringVar(&databaseDSN, "database-dsn", "", "PostgreSQL connection URL")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "Redis address")
	rootCmd.PersistentFlags().StringVar(&assetRoot, "asset-root", "", "directory for retained media")

	rootCmd.SetVersionTemplate(`twscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags in the form config.Load merges
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level":    logLevel,
		"account":      accountName,
		"database-dsn": databaseDSN,
		"redis-addr":   redisAddr,
		"asset-root":   assetRoot,
	}
}

// loadConfig loads configuration from every source and initializes the
// global logger
func loadConfig(extra map[string]interface{}) (*config.Config, error) {
	flags := globalFlags()
	for k, v := range extra {
		flags[k] = v
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
