package secret

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// SecretStore holds sensitive values such as backend passwords.
type SecretStore interface {
	// Set stores a secret value under the given key.
	Set(key string, value []byte) error

	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	// Delete removes the secret for the given key.
	Delete(key string) error
}

// EnvStore reads secrets from environment variables.
type EnvStore struct{}

// NewEnvStore creates a new EnvStore.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

func (EnvStore) Set(key string, value []byte) error {
	return os.Setenv(key, string(value))
}

func (EnvStore) Get(key string) ([]byte, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (EnvStore) Delete(key string) error {
	return os.Unsetenv(key)
}

var (
	ErrUnknownScheme = errors.New("unknown secret scheme")
	ErrMissingSecret = errors.New("secret not found")
)

// Resolver maps the scheme of a reference ("env:PGPASSWORD",
// "keychain:prod-db") to the store that holds it.
type Resolver map[string]SecretStore

// DefaultResolver knows the env and keychain schemes.
func DefaultResolver() Resolver {
	return Resolver{
		"env":      NewEnvStore(),
		"keychain": NewKeychainStore(),
	}
}

// Resolve returns the secret a reference points at. An empty reference
// resolves to an empty secret. A reference without a scheme is read from
// the environment.
func (r Resolver) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok {
		scheme, key = "env", ref
	}
	store, found := r[scheme]
	if !found {
		return "", fmt.Errorf("resolve %q: %w", ref, ErrUnknownScheme)
	}
	v, err := store.Get(key)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	if v == nil {
		return "", fmt.Errorf("resolve %q: %w", ref, ErrMissingSecret)
	}
	return string(v), nil
}
