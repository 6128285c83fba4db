package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"twscraper/pkg/checkpoint"
	"twscraper/pkg/logger"
	"twscraper/pkg/timeline"
	"twscraper/pkg/twitter"
	"twscraper/pkg/ui"
)

var (
	// Crawl command flags
	crawlLastID      int64
	crawlJobID       string
	crawlSince       string
	crawlUntil       string
	crawlFilterLinks bool
	crawlOwnOnly     bool
	checkpointFlag   string
	timestampFlag    string
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Collect post ids from a timeline",
	Long: `Collect media post ids from an account without creating a subscription.

Ids are printed newest first. Crawls given a --job-id record their progress
so an interrupted run can be picked up with 'twscraper crawl recover'.`,
}

var crawlMediaCmd = &cobra.Command{
	Use:   "media <handle|user-id>",
	Short: "Crawl an account's media timeline",
	Example: `  # Every media post of an account
  twscraper crawl media nasa

  # Only posts newer than a known id, with resumable progress
  twscraper crawl media 11348282 --last-id 1790000000000000000 --job-id nasa-1`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawlMedia,
}

var crawlSearchCmd = &cobra.Command{
	Use:   "search <handle>",
	Short: "Crawl media posts through search",
	Long: `Crawl media posts of an account through the search timeline.

Search reaches posts the media timeline no longer returns. At least one of
--since and --until is required. Dates must be in YYYY-MM-DD form; anything
else is ignored.`,
	Example: `  # Media posts from one year
  twscraper crawl search nasa --since 2021-01-01 --until 2022-01-01

  # Only posts with links, written by the account itself
  twscraper crawl search nasa --since 2023-06-01 --own --filter-links`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawlSearch,
}

var crawlRecoverCmd = &cobra.Command{
	Use:   "recover <job-id>",
	Short: "Print the ids an interrupted crawl collected",
	Long: `Print the ids an interrupted crawl had collected before it stopped.

No requests are made. The job is marked finished afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawlRecover,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.AddCommand(crawlMediaCmd)
	crawlCmd.AddCommand(crawlSearchCmd)
	crawlCmd.AddCommand(crawlRecoverCmd)

	crawlCmd.PersistentFlags().StringVar(&checkpointFlag, "checkpoint-backend", "", "job progress backend (file, memory, postgres)")
	crawlCmd.PersistentFlags().StringVar(&timestampFlag, "timestamp-backend", "", "request gate backend (memory, redis, postgres)")

	crawlMediaCmd.Flags().Int64Var(&crawlLastID, "last-id", 0, "stop at this post id")
	crawlMediaCmd.Flags().StringVar(&crawlJobID, "job-id", "", "record progress under this job id")

	crawlSearchCmd.Flags().StringVar(&crawlSince, "since", "", "earliest date (YYYY-MM-DD)")
	crawlSearchCmd.Flags().StringVar(&crawlUntil, "until", "", "latest date (YYYY-MM-DD)")
	crawlSearchCmd.Flags().BoolVar(&crawlFilterLinks, "filter-links", false, "add the filter:links operator")
	crawlSearchCmd.Flags().BoolVar(&crawlOwnOnly, "own", false, "keep only posts written by the account")
	crawlSearchCmd.Flags().StringVar(&crawlJobID, "job-id", "", "record progress under this job id")
}

func crawlFlags() map[string]interface{} {
	return map[string]interface{}{
		"checkpoint-backend": checkpointFlag,
		"timestamp-backend":  timestampFlag,
	}
}

// resolveAccount turns a handle or numeric id into a user id. The handle is
// empty when a numeric id was given.
func resolveAccount(ctx context.Context, client *twitter.Client, arg string) (string, string, error) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "@")
	if _, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return arg, "", nil
	}
	id, err := client.UserByScreenName(ctx, arg)
	if err != nil {
		return "", "", fmt.Errorf("resolve @%s: %w", arg, err)
	}
	return id, arg, nil
}

// openCrawler loads configuration and builds the crawler for one command
func openCrawler(ctx context.Context) (*app, *timeline.Crawler, *twitter.Client, error) {
	cfg, err := loadConfig(crawlFlags())
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	crawler, client, err := a.crawler()
	if err != nil {
		a.Close()
		return nil, nil, nil, err
	}
	return a, crawler, client, nil
}

func printResult(ctx context.Context, crawler *timeline.Crawler, res *timeline.Result) error {
	for _, id := range res.IDs {
		fmt.Println(id)
	}
	if res.NothingFound {
		ui.PrintWarning("Nothing found", "the timeline returned no posts")
	}
	ui.PrintSuccess(fmt.Sprintf("%d ids over %d pages", len(res.IDs), res.Pages))
	return crawler.Finish(ctx, res)
}

func runCrawlMedia(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, crawler, client, err := openCrawler(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	userID, handle, err := resolveAccount(ctx, client, args[0])
	if err != nil {
		return err
	}
	if handle != "" {
		ui.PrintInfo("Account", "@"+handle)
	}
	ui.PrintInfo("User ID", userID)

	res, err := crawler.Media(ctx, userID, crawlLastID, crawlJobID)
	a.metrics.ObserveCrawl("media", resultSize(res), res != nil && res.NothingFound, err)
	if err != nil {
		logger.WithError(err).WithField("user_id", userID).Error("Media crawl failed")
		return err
	}
	return printResult(ctx, crawler, res)
}

func runCrawlSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, crawler, client, err := openCrawler(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	params := timeline.SearchParams{
		Account:     strings.TrimPrefix(args[0], "@"),
		Since:       crawlSince,
		Until:       crawlUntil,
		FilterLinks: crawlFilterLinks,
		JobID:       crawlJobID,
	}
	if crawlOwnOnly {
		if params.UserID, _, err = resolveAccount(ctx, client, params.Account); err != nil {
			return err
		}
	}
	ui.PrintInfo("Query", params.Query())

	res, err := crawler.Search(ctx, params)
	a.metrics.ObserveCrawl("search", resultSize(res), res != nil && res.NothingFound, err)
	if err != nil {
		logger.WithError(err).WithField("account", params.Account).Error("Search crawl failed")
		return err
	}
	return printResult(ctx, crawler, res)
}

func runCrawlRecover(cmd *cobra.Command, args []string) error {
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

	store, err := a.checkpointStore()
	if err != nil {
		return err
	}
	// recovery never touches the network, so no client or credentials
	crawler := timeline.NewCrawler(nil, checkpoint.NewRecorder(store, a.log), nil, cfg.Crawl, a.log)
	res, err := crawler.Recover(ctx, args[0])
	if err != nil {
		return err
	}
	return printResult(ctx, crawler, res)
}

func resultSize(res *timeline.Result) int {
	if res == nil {
		return 0
	}
	return len(res.IDs)
}
