// Package keystore is the opaque byte store every persisted blob lives in.
//
// Keys map to whole serialized values; callers replace a value in one Set so
// that a failed write never leaves a half-updated list behind.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("keystore: key not found")
	ErrSealed   = errors.New("keystore: wrong passphrase or corrupted entry")
)

// Store is a key/value blob store.
type Store interface {
	// Get returns ErrNotFound when key has never been set or was deleted.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendGraviton Backend = "graviton"
	BackendEnvFile  Backend = "envfile"
	BackendMemory   Backend = "memory"
)

// Open returns the store for backend rooted at path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLite(path)
	case BackendGraviton:
		return OpenGraviton(path)
	case BackendEnvFile:
		return OpenEnvFile(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown keystore backend %q", backend)
	}
}

// GetJSON loads key into v. It reports false when the key does not exist.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
