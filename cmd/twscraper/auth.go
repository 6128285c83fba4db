package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"twscraper/pkg/auth"
	"twscraper/pkg/ui"
)

var (
	loginQuick   bool
	verifyHandle string
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage x.com session credentials",
	Long: `Manage stored x.com session credentials.

A session is the auth_token and ct0 cookies of a logged-in browser. They are
stored in:
  - System keychain (when available)
  - Encrypted file under the user config directory
  - Environment variables TWSCRAPER_AUTH_TOKEN and TWSCRAPER_CSRF_TOKEN (read only)

Never share your credentials or config files!`,
}

var loginCmd = &cobra.Command{
	Use:   "login [account-name]",
	Short: "Store session cookies securely",
	Long: `Store session cookies in the system keychain or the encrypted file.

You will be prompted for:
  - An account name (if not provided)
  - The auth_token cookie
  - The ct0 cookie
  - A user agent (optional, press Enter for the default)`,
	Example: `  # Interactive login
  twscraper auth login

  # Store cookies under a name
  twscraper auth login research`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [account-name]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

Without a name you choose from the stored accounts, or remove all of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Long:  `List stored accounts with their cookies masked.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which credentials commands will use",
	Long: `Show which credentials commands will use and check them against x.com
by resolving a handle.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, statusCmd)

	loginCmd.Flags().BoolVar(&loginQuick, "quick", false, "show the short cookie guide")
	statusCmd.Flags().StringVar(&verifyHandle, "verify", "", "resolve this handle to check the session")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	out := cmd.OutOrStdout()
	if loginQuick {
		auth.ShowQuickExtractGuide(out)
	} else {
		auth.ShowCookieExtractionGuide(out)
	}

	prompt := auth.NewPrompter(out)
	ready, err := prompt.Confirm("Ready to enter your cookies? (Y/n): ", true)
	if err != nil {
		return err
	}
	if !ready {
		ui.PrintLine("Run 'twscraper auth login' when you're ready.")
		return nil
	}

	if name != "" {
		if existing, _ := manager.Retrieve(name); existing != nil {
			update, err := prompt.Confirm(fmt.Sprintf("Account '%s' already exists. Update credentials? (y/N): ", name), false)
			if err != nil || !update {
				return err
			}
		}
	}

	account, err := prompt.Account(name)
	if err != nil {
		return err
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	sanitized := auth.SanitizeAccount(account)
	ui.PrintSuccess("Account saved: " + account.Name)
	ui.PrintInfo("auth_token", sanitized.AuthToken)
	ui.PrintInfo("ct0", sanitized.CSRFToken)
	if auth.KeyringAvailable() {
		ui.PrintInfo("Stored in", "system keychain")
	} else {
		ui.PrintInfo("Stored in", "encrypted file")
	}
	ui.PrintLine("")
	ui.PrintLine("Use it with:")
	ui.PrintLine("  twscraper crawl media <handle> --account %s", account.Name)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + args[0])
		return nil
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintWarning("No stored accounts found")
		return nil
	}

	prompt := auth.NewPrompter(cmd.OutOrStdout())
	ui.PrintLine("Select account to remove:")
	for i, account := range accounts {
		ui.PrintLine("  %d. %s", i+1, account.Name)
	}
	ui.PrintLine("  %d. Remove all accounts", len(accounts)+1)
	ui.PrintLine("  0. Cancel")

	input, err := prompt.Line("Choice: ")
	if err != nil {
		return err
	}
	choice, err := strconv.Atoi(input)
	switch {
	case err != nil || choice < 0 || choice > len(accounts)+1:
		return fmt.Errorf("invalid choice %q", input)
	case choice == 0:
		return nil
	case choice == len(accounts)+1:
		confirm, err := prompt.Line("Remove ALL accounts? This cannot be undone! (yes/N): ")
		if err != nil || confirm != "yes" {
			return err
		}
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	default:
		name := accounts[choice-1].Name
		if err := manager.Delete(name); err != nil {
			return err
		}
		ui.PrintSuccess("Account removed: " + name)
		return nil
	}
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'twscraper auth login' to add an account")
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, account := range accounts {
		s := auth.SanitizeAccount(account)
		rows = append(rows, []string{s.Name, s.AuthToken, s.CSRFToken, s.LastModified.Format("2006-01-02 15:04:05")})
	}
	ui.PrintTable([]string{"ACCOUNT", "AUTH_TOKEN", "CT0", "MODIFIED"}, rows)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	if auth.KeyringAvailable() {
		ui.PrintInfo("Keychain", "available")
	} else {
		ui.PrintWarning("Keychain", "unavailable, using the encrypted file")
	}
	switch {
	case os.Getenv("TWSCRAPER_AUTH_TOKEN") != "":
		ui.PrintInfo("Source", "environment")
	case cfg.Twitter.AuthToken != "":
		ui.PrintInfo("Source", "configuration file")
	case cfg.Twitter.Account != "":
		ui.PrintInfo("Source", "stored account "+cfg.Twitter.Account)
	default:
		ui.PrintInfo("Source", "most recently stored account")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	client, err := a.twitterClient()
	if err != nil {
		return err
	}
	ui.PrintSuccess("Credentials found")

	if verifyHandle == "" {
		return nil
	}
	id, err := client.UserByScreenName(ctx, verifyHandle)
	if err != nil {
		return fmt.Errorf("session check failed: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Session works: @%s is %s", verifyHandle, id))
	return nil
}
