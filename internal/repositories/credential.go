package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/zalando/go-keyring"
)

// keyringService names the OS keyring entry holding the credential.
const keyringService = "nowplaying-spotify"

// CredentialStore reads and writes the single Spotify [models.Credential].
//
// Load returns nil with no error when nothing has been stored yet.
type CredentialStore interface {
	Load(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, cred models.Credential) error
}

// NewCredentialStore creates the [CredentialStore] selected by cfg.
func NewCredentialStore(cfg shared.StorageConfig) (CredentialStore, error) {
	switch cfg.Type {
	case shared.StorageFile, "":
		return NewFileStore(cfg.Path)
	case shared.StorageKeyring:
		return NewKeyringStore(keyringService, cfg.KeyringUser)
	default:
		return nil, fmt.Errorf("%w: unsupported storage type %q", shared.ErrInvalidConfig, cfg.Type)
	}
}

// FileStore keeps the credential as the entire content of one JSON file.
type FileStore struct {
	path string
}

var _ CredentialStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for path, creating parent directories with 0700 permissions.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: credential file path cannot be empty", shared.ErrInvalidConfig)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}

	return &FileStore{path: path}, nil
}

// Path returns the credential file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load parses the credential file.
//
// An empty file yields nil. A missing file is recreated empty and also yields nil.
func (s *FileStore) Load(ctx context.Context) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(s.path, nil, 0600); err != nil {
			return nil, fmt.Errorf("%w: recreate %s: %v", shared.ErrStorage, s.path, err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", shared.ErrStorage, s.path, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptCredential, s.path, err)
	}
	return &cred, nil
}

// Save replaces the file content with cred. The write goes through a temp file and rename.
func (s *FileStore) Save(ctx context.Context, cred models.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode credential: %v", shared.ErrStorage, err)
	}

	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorage, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// KeyringStore keeps the credential JSON in the OS keyring
// (macOS Keychain, Windows Credential Manager, or the Linux Secret Service).
type KeyringStore struct {
	service string
	user    string
}

var _ CredentialStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("%w: keyring service cannot be empty", shared.ErrInvalidConfig)
	}
	if user == "" {
		return nil, fmt.Errorf("%w: keyring user cannot be empty", shared.ErrInvalidConfig)
	}
	return &KeyringStore{service: service, user: user}, nil
}

// Load returns nil when the keyring has no entry.
func (k *KeyringStore) Load(ctx context.Context) (*models.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: keyring: %v", shared.ErrStorage, err)
	}

	if strings.TrimSpace(secret) == "" {
		return nil, nil
	}

	var cred models.Credential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		return nil, fmt.Errorf("%w: keyring entry %s/%s: %v", shared.ErrCorruptCredential, k.service, k.user, err)
	}
	return &cred, nil
}

// Save overwrites the keyring entry.
func (k *KeyringStore) Save(ctx context.Context, cred models.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("%w: encode credential: %v", shared.ErrStorage, err)
	}

	if err := keyring.Set(k.service, k.user, string(data)); err != nil {
		return fmt.Errorf("%w: keyring: %v", shared.ErrStorage, err)
	}
	return nil
}
