package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"twscraper/pkg/config"
)

func testAccount(name string) *Account {
	return &Account{
		Name:      name,
		AuthToken: "0123456789abcdef0123456789abcdef01234567",
		CSRFToken: "fedcba9876543210fedcba9876543210",
		UserAgent: "TestAgent/1.0",
	}
}

func TestCredentialManager(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManagerWithStores(store)

	account := testAccount("main")
	require.NoError(t, manager.Store(account))
	assert.False(t, account.LastModified.IsZero())

	retrieved, err := manager.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, account.AuthToken, retrieved.AuthToken)
	assert.Equal(t, account.CSRFToken, retrieved.CSRFToken)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("main"))
	_, err = manager.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, store.Count())

	err = manager.Delete("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestStoreValidatesAccount(t *testing.T) {
	manager := NewManagerWithStores(NewMemoryStore())

	err := manager.Store(&Account{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token is required")
	assert.Contains(t, err.Error(), "CSRF token is required")
}

func TestStoreFallsThroughFailingStore(t *testing.T) {
	broken := NewMemoryStore()
	broken.StoreError = errors.New("keychain locked")
	fallback := NewMemoryStore()
	manager := NewManagerWithStores(broken, fallback)

	require.NoError(t, manager.Store(testAccount("main")))
	assert.Equal(t, 0, broken.Count())
	assert.True(t, fallback.Exists("main"))
}

func TestListPrefersNewestCopy(t *testing.T) {
	older, newer := NewMemoryStore(), NewMemoryStore()
	a := testAccount("main")
	a.LastModified = time.Now().Add(-time.Hour)
	require.NoError(t, older.Store(a))
	b := testAccount("main")
	b.CSRFToken = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	b.LastModified = time.Now()
	require.NoError(t, newer.Store(b))
	require.NoError(t, newer.Store(testAccount("alt")))

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alt", accounts[0].Name)
	assert.Equal(t, b.CSRFToken, accounts[1].CSRFToken)
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("main")
	sanitized := SanitizeAccount(account)

	assert.Equal(t, "0123...4567", sanitized.AuthToken)
	assert.NotEqual(t, account.CSRFToken, sanitized.CSRFToken)
	assert.Equal(t, account.Name, sanitized.Name)
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeAccount(nil))
}

func TestResolveFillsCredentials(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Store(testAccount("main")))
	manager := NewManagerWithStores(store)

	tw := config.DefaultConfig().Twitter
	require.NoError(t, manager.Resolve("main", &tw))
	assert.Equal(t, testAccount("").AuthToken, tw.AuthToken)
	assert.Equal(t, "TestAgent/1.0", tw.UserAgent)

	// explicit credentials are kept
	tw = config.TwitterConfig{AuthToken: "flag", CSRFToken: "flag"}
	require.NoError(t, manager.Resolve("main", &tw))
	assert.Equal(t, "flag", tw.AuthToken)

	tw = config.TwitterConfig{}
	assert.ErrorIs(t, manager.Resolve("missing", &tw), ErrCredentialsNotFound)
}

func TestRetrieveDefaultPrefersEnvironment(t *testing.T) {
	t.Setenv(EnvAuthToken, "env_auth")
	t.Setenv(EnvCSRFToken, "env_csrf")
	store := NewMemoryStore()
	require.NoError(t, store.Store(testAccount("main")))

	account, err := NewManagerWithStores(store, NewEnvironmentStore()).RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "env_auth", account.AuthToken)
	assert.Equal(t, "default", account.Name)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	account := testAccount("encrypted")
	require.NoError(t, store.Store(account))
	require.NoError(t, store.Store(testAccount("second")))

	retrieved, err := store.Retrieve("encrypted")
	require.NoError(t, err)
	assert.Equal(t, account.AuthToken, retrieved.AuthToken)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), account.AuthToken)
	assert.NotContains(t, string(content), account.CSRFToken)

	// a second store with the same passphrase reads the same file
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	assert.True(t, reopened.Exists("second"))

	require.NoError(t, store.Delete("encrypted"))
	require.NoError(t, store.Delete("second"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")
	t.Setenv(PassphraseEnv, "right")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("main")))

	t.Setenv(PassphraseEnv, "wrong")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("main")
	assert.ErrorContains(t, err, "failed to decrypt")
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	dir := t.TempDir()

	_, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, ".passphrase"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvAuthToken, "env_auth")
	t.Setenv(EnvCSRFToken, "env_csrf")
	t.Setenv(EnvAccountName, "bot")

	store := NewEnvironmentStore()
	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "bot", account.Name)
	assert.Equal(t, "env_csrf", account.CSRFToken)

	_, err = store.Retrieve("someone-else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.True(t, store.Exists("bot"))
	assert.ErrorIs(t, store.Store(testAccount("x")), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("bot"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(testAccount("b")))
	require.NoError(t, store.Store(testAccount("a")))

	accounts, err := store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "a", accounts[0].Name)

	require.NoError(t, store.Delete("a"))
	assert.False(t, store.Exists("a"))
	assert.ErrorIs(t, store.Delete("a"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestPrompterAccount(t *testing.T) {
	input := strings.Join([]string{
		"main",
		"0123456789abcdef0123456789abcdef01234567",
		"fedcba9876543210fedcba9876543210",
		"",
	}, "\n") + "\n"
	var out strings.Builder

	account, err := NewPrompterFrom(strings.NewReader(input), &out).Account("")
	require.NoError(t, err)
	assert.Equal(t, "main", account.Name)
	assert.Equal(t, "fedcba9876543210fedcba9876543210", account.CSRFToken)
	assert.Empty(t, account.UserAgent)
	assert.Contains(t, out.String(), "auth_token cookie: ")
}

func TestPrompterRejectsMalformedCookie(t *testing.T) {
	var out strings.Builder
	_, err := NewPrompterFrom(strings.NewReader("not a cookie\n"), &out).Account("main")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPrompterConfirm(t *testing.T) {
	var out strings.Builder
	p := NewPrompterFrom(strings.NewReader("\nyes\nnope\n"), &out)

	ok, err := p.Confirm("? ", true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = p.Confirm("? ", false)
	assert.True(t, ok)
	ok, _ = p.Confirm("? ", true)
	assert.False(t, ok)
}
