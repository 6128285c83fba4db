package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvAuthToken   = "TWSCRAPER_AUTH_TOKEN"
	EnvCSRFToken   = "TWSCRAPER_CSRF_TOKEN"
	EnvUserAgent   = "TWSCRAPER_USER_AGENT"
	EnvAccountName = "TWSCRAPER_ACCOUNT"
)

// EnvironmentStore is a read-only CredentialStore over environment
// variables, used on hosts without a keychain such as containers
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment session. An empty name matches it; any
// other name must equal TWSCRAPER_ACCOUNT, which defaults to "default".
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	authToken := os.Getenv(EnvAuthToken)
	csrfToken := os.Getenv(EnvCSRFToken)
	if authToken == "" || csrfToken == "" {
		return nil, ErrCredentialsNotFound
	}

	envName := os.Getenv(EnvAccountName)
	if envName == "" {
		envName = "default"
	}
	if name != "" && name != envName {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Name:         envName,
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    os.Getenv(EnvUserAgent),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
