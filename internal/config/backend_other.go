//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// xdgDir returns $<env>/sprout, falling back to ~/<homeRel>/sprout and then
// to fallback when no home directory is known.
func xdgDir(env, homeRel, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "sprout")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, homeRel, "sprout")
	}
	return fallback
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "sprout-data")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "config.json")
}

func apiKeyHint() string {
	return " or `sprout config set-secret completion.api_key` (" + secretsFilePath() + ")"
}

// fileBackend keeps sprout settings as one flat JSON object keyed by the
// dotted config key, e.g. {"server.care_port": 5000, "care.session_ttl": "12h"}.
// A file that exists but cannot be read or parsed fails every call, so a
// later write never replaces it with a partial object.
type fileBackend struct {
	path string
	data map[string]any
	err  error
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		b.err = fmt.Errorf("reading config file: %w", err)
	default:
		if err := json.Unmarshal(raw, &b.data); err != nil {
			b.err = fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	return b
}

func (b *fileBackend) lookup(key string) (any, bool, error) {
	if b.err != nil {
		return nil, false, b.err
	}
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *fileBackend) store(key string, val any) error {
	if b.err != nil {
		return b.err
	}
	if val == nil {
		delete(b.data, key)
	} else {
		b.data[key] = val
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, out, 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return "", ok, err
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprintf("%v", v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	switch val := v.(type) {
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

// GetDuration accepts a Go duration string or a number of seconds.
func (b *fileBackend) GetDuration(key string) (time.Duration, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	switch val := v.(type) {
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, true, nil
	case float64:
		if val < 0 || val > math.MaxInt64/float64(time.Second) {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return time.Duration(val * float64(time.Second)), true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	return b.store(key, val)
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.store(key, val)
}

func (b *fileBackend) SetDuration(key string, val time.Duration) error {
	return b.store(key, val.String())
}

func (b *fileBackend) Delete(key string) error {
	return b.store(key, nil)
}
