package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "twscraper"
	keyringPrefix  = "x_"
	// keyringIndex holds the list of stored account names; the keychain
	// itself cannot enumerate entries portably.
	keyringIndex = "accounts"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore probes the keychain and returns a store when it works
func NewKeyringStore() (*KeyringStore, error) {
	if !KeyringAvailable() {
		return nil, fmt.Errorf("%w: keyring", ErrStoreUnavailable)
	}
	return &KeyringStore{}, nil
}

// KeyringAvailable reports whether the system keychain accepts writes
func KeyringAvailable() bool {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+account.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	names, err := k.names()
	if err != nil {
		return err
	}
	names[account.Name] = true
	return k.saveNames(names)
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// List returns the accounts recorded in the keychain index
func (k *KeyringStore) List() ([]*Account, error) {
	k.mu.Lock()
	names, err := k.names()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	accounts := make([]*Account, 0, len(sorted))
	for _, name := range sorted {
		account, err := k.Retrieve(name)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(keyringService, keyringPrefix+name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	names, err := k.names()
	if err != nil {
		return err
	}
	delete(names, name)
	return k.saveNames(names)
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+name)
	return err == nil
}

func (k *KeyringStore) names() (map[string]bool, error) {
	names := make(map[string]bool)
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return names, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	for _, n := range list {
		names[n] = true
	}
	return names, nil
}

func (k *KeyringStore) saveNames(names map[string]bool) error {
	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
