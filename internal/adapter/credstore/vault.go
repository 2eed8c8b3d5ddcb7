package credstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"

	"agentmesh/internal/domain"
)

// VaultStore is the machine-local secret backend: an AES-256-GCM encrypted
// file keyed by an Argon2id-derived key. It fills the keychain role on
// hosts without one. Construction that cannot use the vault (no passphrase,
// unwritable path) degrades to a disabled store that reads as
// not-found and silently drops writes, so callers never have to branch.
type VaultStore struct {
	id       string
	path     string
	key      []byte
	disabled bool
	logger   *slog.Logger

	mu sync.Mutex
}

var _ domain.CredentialStore = (*VaultStore)(nil)

type vaultFile struct {
	Salt    string            `json:"salt"`
	Secrets map[string]string `json:"secrets"`
}

// NewVaultStore opens (or creates) the vault file at path. An empty
// passphrase yields a disabled store.
func NewVaultStore(path, passphrase string, logger *slog.Logger) *VaultStore {
	s := &VaultStore{id: domain.CredentialStoreKeychain, path: path, logger: logger}
	if passphrase == "" {
		logger.Warn("vault passphrase not configured, secure store disabled")
		s.disabled = true
		return s
	}

	salt, err := s.loadOrCreateSalt()
	if err != nil {
		logger.Warn("vault unavailable, secure store disabled", "path", path, "error", err)
		s.disabled = true
		return s
	}
	s.key = argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	return s
}

func (s *VaultStore) ID() string { return s.id }

// Disabled reports whether the store degraded to no-op mode.
func (s *VaultStore) Disabled() bool { return s.disabled }

func (s *VaultStore) Get(_ context.Context, key string) (string, error) {
	if s.disabled {
		return "", domain.ErrCredentialNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		s.logger.Warn("vault read failed", "error", err)
		return "", domain.NewSubSystemError("credstore", "VaultStore.Get",
			domain.ErrProviderError, err.Error())
	}
	sealed, ok := f.Secrets[key]
	if !ok {
		return "", domain.ErrCredentialNotFound
	}
	plain, err := s.decrypt(sealed)
	if err != nil {
		s.logger.Warn("vault entry undecryptable", "key", key, "error", err)
		return "", domain.NewSubSystemError("credstore", "VaultStore.Get",
			domain.ErrProviderError, "entry undecryptable")
	}
	return plain, nil
}

func (s *VaultStore) Set(_ context.Context, key, value string) error {
	if s.disabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.WrapOp("VaultStore.Set", err)
	}
	sealed, err := s.encrypt(value)
	if err != nil {
		return domain.WrapOp("VaultStore.Set", err)
	}
	f.Secrets[key] = sealed
	return s.save(f)
}

// Has reports whether the key exists. Failures other than a missing key,
// such as an undecryptable vault, surface as errors so callers can tell an
// outage apart from absence.
func (s *VaultStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrCredentialNotFound) {
		return false, nil
	}
	return false, err
}

func (s *VaultStore) Delete(_ context.Context, key string) error {
	if s.disabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return domain.WrapOp("VaultStore.Delete", err)
	}
	delete(f.Secrets, key)
	return s.save(f)
}

func (s *VaultStore) loadOrCreateSalt() ([]byte, error) {
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	if f.Salt != "" {
		return base64.StdEncoding.DecodeString(f.Salt)
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	f.Salt = base64.StdEncoding.EncodeToString(salt)
	if err := s.save(f); err != nil {
		return nil, err
	}
	return salt, nil
}

func (s *VaultStore) load() (*vaultFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &vaultFile{Secrets: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, err
	}
	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	if f.Secrets == nil {
		f.Secrets = make(map[string]string)
	}
	return &f, nil
}

func (s *VaultStore) save(f *vaultFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *VaultStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *VaultStore) decrypt(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, body := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
