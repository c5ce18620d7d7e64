package keystore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvFile keeps every blob in one dotenv file. Names are hex-encoded keys
// and values are base64, so arbitrary keys and bytes survive the format.
// Writes go to a temporary file that replaces the original.
type EnvFile struct {
	mu   sync.Mutex
	path string
}

// OpenEnvFile uses the file at path, creating its directory if needed.
func OpenEnvFile(path string) (*EnvFile, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("error creating keystore directory: %v", err)
		}
	}
	return &EnvFile{path: path}, nil
}

// valuePrefix stops godotenv from writing all-digit values as integers.
const valuePrefix = "b64:"

func envName(key string) string {
	return "SIP_" + strings.ToUpper(hex.EncodeToString([]byte(key)))
}

func (e *EnvFile) read() (map[string]string, error) {
	env, err := godotenv.Read(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading keystore file: %v", err)
	}
	return env, nil
}

func (e *EnvFile) write(env map[string]string) error {
	tmp := e.path + ".tmp"
	if err := godotenv.Write(env, tmp); err != nil {
		return fmt.Errorf("error saving keystore file: %v", err)
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, e.path)
}

func (e *EnvFile) Get(_ context.Context, key string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, err := e.read()
	if err != nil {
		return nil, err
	}
	encoded, ok := env[envName(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, valuePrefix))
}

func (e *EnvFile) Set(_ context.Context, key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, err := e.read()
	if err != nil {
		return err
	}
	env[envName(key)] = valuePrefix + base64.StdEncoding.EncodeToString(value)
	return e.write(env)
}

func (e *EnvFile) Delete(_ context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := env[envName(key)]; !ok {
		return nil
	}
	delete(env, envName(key))
	return e.write(env)
}
