package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "TWSCRAPER_PASSPHRASE"
)

// EncryptedFileStore keeps all accounts in one AES-GCM encrypted file. The
// key is derived with PBKDF2 from a passphrase taken from the environment
// or from a generated file next to the store.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the on-disk form of the store
type envelope struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates an encrypted file-based credential store
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(filepath.Join(dir, ".passphrase"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store saves credentials to the encrypted file
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil {
		return err
	}
	accounts[account.Name] = *account
	return e.save(accounts, salt)
}

// Retrieve gets credentials from the encrypted file
func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		return nil, err
	}
	account, ok := accounts[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns all stored accounts
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		return nil, err
	}
	result := make([]*Account, 0, len(accounts))
	for _, account := range accounts {
		acc := account
		result = append(result, &acc)
	}
	return result, nil
}

// Delete removes credentials from the encrypted file. The file goes away
// with the last account.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil {
		return err
	}
	if _, ok := accounts[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, name)

	if len(accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.save(accounts, salt)
}

// Exists checks if credentials exist
func (e *EncryptedFileStore) Exists(name string) bool {
	account, err := e.Retrieve(name)
	return err == nil && account != nil
}

// load decrypts the file. A missing file is an empty store with no salt.
func (e *EncryptedFileStore) load() (map[string]Account, []byte, error) {
	accounts := make(map[string]Account)

	content, err := os.ReadFile(e.path)
	if errors.Is(err, os.ErrNotExist) {
		return accounts, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}

	plain, err := open(sealed, deriveKey(e.passphrase, salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, salt, nil
}

// save encrypts accounts, writing a temporary file and renaming it into place
func (e *EncryptedFileStore) save(accounts map[string]Account, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := seal(plain, deriveKey(e.passphrase, salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	content, err := json.MarshalIndent(envelope{
		Version:   1,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials file: %w", err)
	}

	tempFile := e.path + ".tmp"
	if err := os.WriteFile(tempFile, content, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tempFile, e.path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename credentials file: %w", err)
	}
	return nil
}

// loadPassphrase returns the environment passphrase, or the one stored in
// path, generating it on first use
func loadPassphrase(path string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keySize, sha256.New)
}

// seal encrypts with AES-GCM, prefixing the nonce
func seal(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
