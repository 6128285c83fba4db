package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"twscraper/pkg/config"
)

// Account is one stored x.com session: the auth_token and ct0 cookies plus
// the user agent they were issued to
type Account struct {
	Name         string    `json:"name"`
	AuthToken    string    `json:"auth_token"`
	CSRFToken    string    `json:"csrf_token"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Validate checks that the session cookies are present
func (a *Account) Validate() error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, errors.New("account name is required"))
	}
	if a.AuthToken == "" {
		errs = append(errs, errors.New("auth token is required"))
	}
	if a.CSRFToken == "" {
		errs = append(errs, errors.New("CSRF token is required"))
	}
	return errors.Join(errs...)
}

// Apply copies the session into the request credentials. Values already
// present in tw win so flags and environment variables can override a
// stored account.
func (a *Account) Apply(tw *config.TwitterConfig) {
	if tw.AuthToken == "" {
		tw.AuthToken = a.AuthToken
	}
	if tw.CSRFToken == "" {
		tw.CSRFToken = a.CSRFToken
	}
	if a.UserAgent != "" && tw.UserAgent == config.DefaultConfig().Twitter.UserAgent {
		tw.UserAgent = a.UserAgent
	}
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific account name
	Retrieve(name string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific account name
	Delete(name string) error

	// Exists checks if credentials exist for an account name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager over the keychain, an encrypted
// file and the environment, in that order
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// RetrieveDefault prefers environment credentials, then the most recently
// modified stored account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if env, ok := store.(*EnvironmentStore); ok {
			if account, err := env.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].LastModified.After(accounts[j].LastModified)
	})
	return accounts[0], nil
}

// Resolve fills tw from the named account, or from the default account
// when name is empty. Credentials already set in tw are left alone.
func (m *Manager) Resolve(name string, tw *config.TwitterConfig) error {
	if tw.AuthToken != "" && tw.CSRFToken != "" {
		return nil
	}
	var account *Account
	var err error
	if name != "" {
		account, err = m.Retrieve(name)
	} else {
		account, err = m.RetrieveDefault()
	}
	if err != nil {
		return err
	}
	account.Apply(tw)
	return nil
}

// List returns all stored accounts, newest version of each, sorted by name
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := byName[account.Name]; !ok || account.LastModified.After(existing.LastModified) {
				byName[account.Name] = account
			}
		}
	}

	result := make([]*Account, 0, len(byName))
	for _, account := range byName {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// DeleteAll removes all stored credentials
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, account := range accounts {
		if err := m.Delete(account.Name); err != nil && !errors.Is(err, ErrCredentialsNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "twscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "twscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "twscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "twscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// SanitizeAccount creates a copy of the account with the cookies masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Name:         account.Name,
		AuthToken:    maskString(account.AuthToken),
		CSRFToken:    maskString(account.CSRFToken),
		UserAgent:    account.UserAgent,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
