package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "lightcast-mcp"

	// NoKeyringEnv disables the system keyring when set to any value.
	NoKeyringEnv = "LIGHTCAST_NO_KEYRING"

	secretsFile = "secrets.json"
)

// ErrSecretNotFound is returned when no secret is stored for a client ID.
var ErrSecretNotFound = errors.New("client secret not found")

// SecretStore keeps client secrets keyed by client ID, preferring the
// system keyring and falling back to a 0600 file in dir.
type SecretStore struct {
	useKeyring bool
	dir        string
}

// NewSecretStore tests the system keyring and returns a store backed by it
// when available.
func NewSecretStore(dir string, log zerolog.Logger) *SecretStore {
	if os.Getenv(NoKeyringEnv) != "" {
		return &SecretStore{dir: dir}
	}

	check := keyringService + "::check"
	if err := keyring.Set(keyringService, check, "check"); err == nil {
		_ = keyring.Delete(keyringService, check)
		return &SecretStore{useKeyring: true, dir: dir}
	}

	log.Warn().
		Str("path", filepath.Join(dir, secretsFile)).
		Msg("system keyring unavailable, client secrets stored in plaintext")
	return &SecretStore{dir: dir}
}

// Get returns the secret stored for clientID.
func (s *SecretStore) Get(clientID string) (string, error) {
	if s.useKeyring {
		secret, err := keyring.Get(keyringService, clientID)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrSecretNotFound
		}
		return secret, err
	}

	all, err := s.readFile()
	if err != nil {
		return "", err
	}
	secret, ok := all[clientID]
	if !ok {
		return "", ErrSecretNotFound
	}
	return secret, nil
}

// Set stores secret for clientID.
func (s *SecretStore) Set(clientID, secret string) error {
	if clientID == "" {
		return errors.New("client id is required")
	}
	if s.useKeyring {
		return keyring.Set(keyringService, clientID, secret)
	}

	all, err := s.readFile()
	if err != nil {
		return err
	}
	all[clientID] = secret
	return s.writeFile(all)
}

// Delete removes the secret for clientID. Deleting a missing secret is not
// an error.
func (s *SecretStore) Delete(clientID string) error {
	if s.useKeyring {
		err := keyring.Delete(keyringService, clientID)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}

	all, err := s.readFile()
	if err != nil {
		return err
	}
	if _, ok := all[clientID]; !ok {
		return nil
	}
	delete(all, clientID)
	return s.writeFile(all)
}

// UsingKeyring reports whether secrets go to the system keyring.
func (s *SecretStore) UsingKeyring() bool {
	return s.useKeyring
}

// Path returns the fallback file location.
func (s *SecretStore) Path() string {
	return filepath.Join(s.dir, secretsFile)
}

func (s *SecretStore) readFile() (map[string]string, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]string)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path(), err)
	}
	return all, nil
}

func (s *SecretStore) writeFile(all map[string]string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "secrets-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	dest := s.Path()
	if err := os.Rename(tmpPath, dest); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(dest)
			return os.Rename(tmpPath, dest)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}
