package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"twscraper/pkg/auth"
	"twscraper/pkg/config"
	"twscraper/pkg/ui"
)

var configForce bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage twscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TWSCRAPER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is created as '.twscraper.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the configuration after merging every source. Credentials are
masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the merged configuration and report problems that only show up
at run time, such as missing credentials or unwritable directories.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd, showCmd, validateCmd)
	initCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
}

const exampleConfig = `# twscraper configuration

twitter:
  # Session cookies; prefer 'twscraper auth login' over putting them here
  auth_token: ""
  csrf_token: ""
  # Stored account to use when no cookies are set
  account: ""
  base_url: "https://x.com"

rate_limit:
  # Minimum time between two requests, shared by every worker
  min_interval: 1s
  request_timeout: 10s
  network_retries: 3
  network_retry_delay: 5s
  # Wait after HTTP 429, and how many times in a row before giving up
  rate_limit_cooldown: 5m
  max_cooldowns: 12
  server_error_cooldown: 60s
  server_retries: 3
  # Where the last request time lives: memory, redis, postgres
  timestamp_backend: memory

crawl:
  media_page_size: 100
  media_page_size_with_floor: 20
  search_page_size: 100
  # Job progress: file, memory, postgres
  checkpoint_backend: file
  checkpoint_dir: ""
  # Tweet and user cache: memory, redis, postgres
  entity_cache_backend: memory
  entity_cache_ttl: 24h

subscription:
  # Days before an undecided element expires
  expiration_days: 14
  # Days an unlinked element keeps its media before deletion
  unlink_grace_days: 7
  sweep_page_size: 50
  sweep_max_pages: 10
  # What happens to expired undecided elements: unlink, archive, none
  expired_action: unlink
  requery_interval: 24h

database:
  # postgres:// URL; required for subscriptions
  dsn: ""
  max_conns: 8
  migrate_on_start: false

redis:
  addr: ""
  key_prefix: "twscraper:"

kafka:
  enabled: false
  brokers: []
  topic: "twscraper.crawls"

storage:
  asset_root: "./assets"
  # Cold storage; defaults to a directory under asset_root
  archive_dir: ""
  # Write <tweet id>.json with the tweet's text and counts next to its media
  save_metadata: true

jobs:
  workers: 2
  starts_per_minute: 6
  sync_every: 15m
  sweep_every: 1h

metrics:
  enabled: false
  listen: ":9090"

logging:
  # debug, info, warn, error
  level: info
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".twscraper.yaml"
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.PrintLine("")
	ui.PrintLine("Next steps:")
	ui.PrintLine("1. Run 'twscraper auth login' to store your session cookies")
	ui.PrintLine("2. Set database.dsn and run 'twscraper migrate'")
	ui.PrintLine("3. Track an account with 'twscraper subscription add <handle>'")
	return nil
}

// maskedConfig copies cfg with credentials masked for display
func maskedConfig(cfg *config.Config) config.Config {
	display := *cfg
	masked := auth.SanitizeAccount(&auth.Account{
		AuthToken: cfg.Twitter.AuthToken,
		CSRFToken: cfg.Twitter.CSRFToken,
	})
	if display.Twitter.AuthToken != "" {
		display.Twitter.AuthToken = masked.AuthToken
	}
	if display.Twitter.CSRFToken != "" {
		display.Twitter.CSRFToken = masked.CSRFToken
	}
	if display.Twitter.BearerToken != "" {
		display.Twitter.BearerToken = "***"
	}
	if display.Database.DSN != "" {
		display.Database.DSN = "***"
	}
	return display
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := maskedConfig(cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings, problems []string

	if err := cfg.ValidateCredentials(); err != nil {
		warnings = append(warnings, "no session cookies configured; stored accounts will be used")
	}
	if cfg.Database.DSN == "" {
		warnings = append(warnings, "no database configured; subscription commands are unavailable")
	}
	if cfg.Jobs.Workers > 1 && cfg.RateLimit.TimestampBackend == config.BackendMemory {
		warnings = append(warnings, "memory timestamp backend only coordinates workers inside one process")
	}
	if err := os.MkdirAll(cfg.Storage.AssetRoot, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create asset root: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			ui.PrintLine("  - %s", p)
		}
		return fmt.Errorf("%d configuration error(s)", len(problems))
	}
	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			ui.PrintLine("  - %s", w)
		}
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Asset root", cfg.Storage.AssetRoot)
	ui.PrintInfo("Workers", fmt.Sprint(cfg.Jobs.Workers))
	ui.PrintInfo("Min interval", cfg.RateLimit.MinInterval.String())
	ui.PrintInfo("Timestamp backend", cfg.RateLimit.TimestampBackend)
	ui.PrintInfo("Checkpoint backend", cfg.Crawl.CheckpointBackend)
	ui.PrintInfo("Log level", cfg.Logging.Level)
	return nil
}
