//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// secretsFilePath is where `sprout config set-secret` keeps secrets on
// platforms without a Keychain. Layout: {"sprout": {"session_secret": "..."}}.
func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "."), "secrets.json")
}

type secretsFile map[string]map[string]string

func readSecretsFile(path string) (secretsFile, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return secretsFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	var s secretsFile
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	if s == nil {
		s = secretsFile{}
	}
	return s, nil
}

func keychainExec(service, account string) ([]byte, error) {
	s, err := readSecretsFile(secretsFilePath())
	if err != nil {
		return nil, err
	}
	val, ok := s[service][account]
	if !ok {
		return nil, fmt.Errorf("secret %s/%s not set", service, account)
	}
	return []byte(val), nil
}

// keychainSet refuses to touch a secrets file it cannot parse, since
// rewriting it would drop the other secrets.
func keychainSet(service, account, value string) error {
	path := secretsFilePath()
	s, err := readSecretsFile(path)
	if err != nil {
		return err
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
