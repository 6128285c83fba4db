package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"twscraper/pkg/models"
	"twscraper/pkg/subscription"
	"twscraper/pkg/ui"
)

var (
	subExpirationDays int
	subElementsLimit  int
)

// subscriptionCmd represents the subscription command
var subscriptionCmd = &cobra.Command{
	Use:     "subscription",
	Aliases: []string{"sub"},
	Short:   "Manage tracked accounts",
	Long: `Manage the accounts whose media is tracked.

Subscriptions and their elements live in PostgreSQL, so every subcommand
needs database.dsn or --database-dsn.`,
}

var subAddCmd = &cobra.Command{
	Use:   "add <handle|user-id>",
	Short: "Start tracking an account",
	Example: `  # Track an account; the scheduler syncs it on its next pass
  twscraper subscription add nasa

  # Keep undecided posts for 30 days instead of the default
  twscraper subscription add nasa --expiration-days 30`,
	Args: cobra.ExactArgs(1),
	RunE: runSubAdd,
}

var subListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked accounts",
	Args:  cobra.NoArgs,
	RunE:  runSubList,
}

var subShowCmd = &cobra.Command{
	Use:   "show <subscription-id>",
	Short: "Show a subscription and its elements",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubShow,
}

var subKeepCmd = &cobra.Command{
	Use:   "keep <element-id> <yes|no|maybe|archive|none>",
	Short: "Record a keep decision on an element",
	Long: `Record a keep decision on an element.

  yes, archive  retained; expires in one day so the next sweep acts on it
  no            expires in seven days and is then unlinked
  maybe         never expires
  none          undecided; expires after the subscription's expiration days`,
	Args: cobra.ExactArgs(2),
	RunE: runSubKeep,
}

var subPauseCmd = &cobra.Command{
	Use:   "pause <subscription-id>",
	Short: "Stop syncing a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd.Context(), args[0], false)
	},
}

var subResumeCmd = &cobra.Command{
	Use:   "resume <subscription-id>",
	Short: "Sync a paused subscription again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd.Context(), args[0], true)
	},
}

var subRemoveCmd = &cobra.Command{
	Use:   "remove <subscription-id>",
	Short: "Stop tracking an account and forget its elements",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubRemove,
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(subAddCmd, subListCmd, subShowCmd, subKeepCmd, subPauseCmd, subResumeCmd, subRemoveCmd)

	subAddCmd.Flags().IntVar(&subExpirationDays, "expiration-days", 0, "days before an undecided element expires (default from config)")
	subShowCmd.Flags().IntVar(&subElementsLimit, "limit", 50, "maximum elements to show")
}

// openSubscriptions loads configuration and the subscription reconciler
func openSubscriptions(ctx context.Context) (*app, *subscription.Reconciler, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	r, err := a.subscriptions()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, r, nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func runSubAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := a.twitterClient()
	if err != nil {
		return err
	}
	userID, handle, err := resolveAccount(ctx, client, args[0])
	if err != nil {
		return err
	}
	if handle == "" {
		record, err := client.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		user, err := models.UserFromRecord(record)
		if err != nil {
			return err
		}
		handle = user.ScreenName
	}

	sub := &subscription.Subscription{
		AccountID:      userID,
		Handle:         handle,
		ExpirationDays: subExpirationDays,
		Status:         subscription.SubscriptionAutomatic,
		Active:         true,
	}
	if err := r.Store().CreateSubscription(ctx, sub); err != nil {
		return err
	}

	ui.PrintSuccess("Subscription created")
	ui.PrintInfo("ID", strconv.FormatInt(sub.ID, 10))
	ui.PrintInfo("Account", "@"+sub.Handle+" ("+sub.AccountID+")")
	ui.PrintInfo("Status", sub.Status.String())
	return nil
}

func runSubList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := r.Store().ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		ui.PrintWarning("No subscriptions", "add one with 'twscraper subscription add <handle>'")
		return nil
	}

	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			"@" + s.Handle,
			s.Status.String(),
			strconv.FormatBool(s.Active),
			strconv.FormatInt(s.LastID, 10),
			formatTime(s.RequeryAt),
			strconv.Itoa(len(s.ErrorIDs)),
		})
	}
	ui.PrintTable([]string{"ID", "HANDLE", "STATUS", "ACTIVE", "LAST ID", "REQUERY AT", "ERRORS"}, rows)
	return nil
}

func runSubShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0], "subscription")
	if err != nil {
		return err
	}
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sub, err := r.Store().GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	ui.PrintHighlight("@" + sub.Handle)
	ui.PrintInfo("Account ID", sub.AccountID)
	ui.PrintInfo("Status", sub.Status.String())
	ui.PrintInfo("Active", strconv.FormatBool(sub.Active))
	ui.PrintInfo("Last ID", strconv.FormatInt(sub.LastID, 10))
	ui.PrintInfo("Requery at", formatTime(sub.RequeryAt))
	if len(sub.ErrorIDs) > 0 {
		ui.PrintInfo("Error records", fmt.Sprint(sub.ErrorIDs))
	}

	elements, err := r.Store().ListElements(ctx, sub.ID, 0, subElementsLimit)
	if err != nil {
		return err
	}
	if len(elements) == 0 {
		ui.PrintLine("No elements yet")
		return nil
	}
	rows := make([][]string, 0, len(elements))
	for _, e := range elements {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			strconv.FormatInt(e.ContentID, 10),
			e.Status.String(),
			e.Keep.String(),
			formatTime(e.Expires),
			e.AssetKey,
		})
	}
	ui.PrintTable([]string{"ELEMENT", "POST", "STATUS", "KEEP", "EXPIRES", "ASSET"}, rows)
	return nil
}

func runSubKeep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0], "element")
	if err != nil {
		return err
	}
	keep, err := subscription.ParseKeep(args[1])
	if err != nil {
		return err
	}
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := r.Store().GetElement(ctx, id)
	if err != nil {
		return err
	}
	sub, err := r.Store().GetSubscription(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}
	if err := r.SetKeep(ctx, sub, e, keep); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Element %d keep set to %s", e.ID, keep))
	ui.PrintInfo("Expires", formatTime(e.Expires))
	return nil
}

func setActive(ctx context.Context, arg string, active bool) error {
	id, err := parseID(arg, "subscription")
	if err != nil {
		return err
	}
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sub, err := r.Store().GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	sub.Active = active
	if active {
		// due on the next scheduler pass
		sub.RequeryAt = nil
	}
	if err := r.Store().UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if active {
		ui.PrintSuccess("Subscription @" + sub.Handle + " resumed")
	} else {
		ui.PrintSuccess("Subscription @" + sub.Handle + " paused")
	}
	return nil
}

func runSubRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := parseID(args[0], "subscription")
	if err != nil {
		return err
	}
	a, r, err := openSubscriptions(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := r.Store().DeleteSubscription(ctx, id); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Subscription %d removed", id))
	return nil
}
