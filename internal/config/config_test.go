package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != keychainService {
		return "", errors.New("unknown service")
	}
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mockBackend is an in-memory ConfigBackend.
type mockBackend struct {
	strings   map[string]string
	ints      map[string]int
	durations map[string]time.Duration
	err       error
}

func newMockBackend() *mockBackend {
	return &mockBackend{strings: map[string]string{}, ints: map[string]int{}, durations: map[string]time.Duration{}}
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mockBackend) GetDuration(key string) (time.Duration, bool, error) {
	if m.err != nil {
		return 0, true, m.err
	}
	v, ok := m.durations[key]
	return v, ok, nil
}

func (m *mockBackend) SetString(key, val string) error {
	m.strings[key] = val
	return nil
}

func (m *mockBackend) SetInt(key string, val int) error {
	m.ints[key] = val
	return nil
}

func (m *mockBackend) SetDuration(key string, val time.Duration) error {
	m.durations[key] = val
	return nil
}

func (m *mockBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	delete(m.durations, key)
	return nil
}

// clearEnv blanks every variable the loader reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		for _, a := range s.aliases {
			t.Setenv(a, "")
		}
	}
}

// TestDefaults verifies all default values are applied when nothing is configured.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMockBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.CarePort != 5001 {
		t.Errorf("Server.CarePort = %d, want 5001", cfg.Server.CarePort)
	}
	if cfg.Server.FilesPort != 5000 {
		t.Errorf("Server.FilesPort = %d, want 5000", cfg.Server.FilesPort)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.DocStore.Backend != "http" {
		t.Errorf("DocStore.Backend = %q, want http", cfg.DocStore.Backend)
	}
	if cfg.DocStore.Timeout != 10*time.Second {
		t.Errorf("DocStore.Timeout = %v, want 10s", cfg.DocStore.Timeout)
	}
	if cfg.Completion.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("Completion.BaseURL = %q", cfg.Completion.BaseURL)
	}
	if cfg.Completion.Model != "gpt-4o-mini" {
		t.Errorf("Completion.Model = %q, want gpt-4o-mini", cfg.Completion.Model)
	}
	if cfg.Care.SessionTTL != 24*time.Hour {
		t.Errorf("Care.SessionTTL = %v, want 24h", cfg.Care.SessionTTL)
	}
	if cfg.Files.MaxUploadMB != 500 {
		t.Errorf("Files.MaxUploadMB = %d, want 500", cfg.Files.MaxUploadMB)
	}
	if want := filepath.Join(cfg.Storage.DataDir, "storage"); cfg.Files.StorageDir != want {
		t.Errorf("Files.StorageDir = %q, want %q", cfg.Files.StorageDir, want)
	}
}

// TestBackendValues verifies that backend values replace defaults.
func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := newMockBackend()
	b.ints["server.care_port"] = 6001
	b.strings["storage.data_dir"] = "/tmp/sprout-test"
	b.strings["docstore.backend"] = "sqlite"
	b.durations["care.session_ttl"] = 2 * time.Hour
	b.strings["completion.api_key"] = "ignored: secrets are never read from the backend"

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.CarePort != 6001 {
		t.Errorf("Server.CarePort = %d, want 6001", cfg.Server.CarePort)
	}
	if cfg.DocStore.Backend != "sqlite" {
		t.Errorf("DocStore.Backend = %q, want sqlite", cfg.DocStore.Backend)
	}
	if cfg.Care.SessionTTL != 2*time.Hour {
		t.Errorf("Care.SessionTTL = %v, want 2h", cfg.Care.SessionTTL)
	}
	if cfg.DocStore.Timeout != 10*time.Second {
		t.Errorf("DocStore.Timeout = %v, want default 10s", cfg.DocStore.Timeout)
	}
	if cfg.Completion.APIKey != "" {
		t.Errorf("Completion.APIKey = %q, want empty", cfg.Completion.APIKey)
	}
	if cfg.Files.StorageDir != filepath.Join("/tmp/sprout-test", "storage") {
		t.Errorf("Files.StorageDir = %q", cfg.Files.StorageDir)
	}
}

// TestBackendBadDuration verifies that a malformed stored duration fails the load.
func TestBackendBadDuration(t *testing.T) {
	clearEnv(t)
	b := newMockBackend()
	b.err = errors.New("invalid duration")

	_, err := loadWith(b, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for a bad backend duration")
	}
	if !strings.Contains(err.Error(), "care.session_ttl") && !strings.Contains(err.Error(), "docstore.timeout") {
		t.Errorf("error %q does not name the key", err)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := newMockBackend()
	b.ints["server.files_port"] = 7000

	t.Setenv("SPROUT_SERVER_FILES_PORT", "7100")
	t.Setenv("SPROUT_COMPLETION_API_KEY", "env-key")
	t.Setenv("SPROUT_CARE_SESSION_TTL", "30m")
	t.Setenv("SPROUT_SERVER_CARE_PORT", "not-a-number")

	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.FilesPort != 7100 {
		t.Errorf("Server.FilesPort = %d, want 7100", cfg.Server.FilesPort)
	}
	if cfg.Server.CarePort != 5001 {
		t.Errorf("Server.CarePort = %d, want default after parse failure", cfg.Server.CarePort)
	}
	if cfg.Completion.APIKey != "env-key" {
		t.Errorf("Completion.APIKey = %q, want env-key", cfg.Completion.APIKey)
	}
	if cfg.Care.SessionTTL != 30*time.Minute {
		t.Errorf("Care.SessionTTL = %v, want 30m", cfg.Care.SessionTTL)
	}
}

// TestEnvAliases verifies the older variable names are honored, and that
// SPROUT_* names win over them.
func TestEnvAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIREBASE_URL", "https://plants.example.com")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("FLASK_SECRET_KEY", "flask-secret")
	t.Setenv("SPROUT_SESSION_SECRET", "sprout-secret")

	cfg, err := loadWith(newMockBackend(), mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DocStore.BaseURL != "https://plants.example.com" {
		t.Errorf("DocStore.BaseURL = %q", cfg.DocStore.BaseURL)
	}
	if cfg.Completion.APIKey != "openai-key" {
		t.Errorf("Completion.APIKey = %q", cfg.Completion.APIKey)
	}
	if cfg.Care.SessionSecret != "sprout-secret" {
		t.Errorf("Care.SessionSecret = %q, want sprout-secret", cfg.Care.SessionSecret)
	}
}

// TestKeychainFallback verifies secrets come from the keychain when the
// environment does not set them.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := mockKeychain{values: map[string]string{
		"completion_api_key": "kc-key",
		"session_secret":     "kc-secret",
	}}

	cfg, err := loadWith(newMockBackend(), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Completion.APIKey != "kc-key" {
		t.Errorf("Completion.APIKey = %q, want kc-key", cfg.Completion.APIKey)
	}
	if cfg.Care.SessionSecret != "kc-secret" {
		t.Errorf("Care.SessionSecret = %q, want kc-secret", cfg.Care.SessionSecret)
	}

	t.Setenv("SPROUT_COMPLETION_API_KEY", "env-key")
	cfg, _ = loadWith(newMockBackend(), kc)
	if cfg.Completion.APIKey != "env-key" {
		t.Errorf("env must win over keychain, got %q", cfg.Completion.APIKey)
	}
}

// TestValidateCare verifies a clear error lists every missing setting.
func TestValidateCare(t *testing.T) {
	cfg := defaults()

	err := cfg.ValidateCare()
	if err == nil {
		t.Fatal("expected error for empty config, got nil")
	}
	for _, want := range []string{"missing required config", "completion API key", "session secret", "document store URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}

	cfg.Completion.APIKey = "k"
	cfg.Care.SessionSecret = "s"
	cfg.DocStore.Backend = "sqlite"
	if err := cfg.ValidateCare(); err != nil {
		t.Errorf("sqlite backend needs no URL, got %v", err)
	}

	cfg.DocStore.Backend = "http"
	cfg.DocStore.BaseURL = "https://plants.example.com"
	if err := cfg.ValidateCare(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSetKey(t *testing.T) {
	b := newMockBackend()

	if err := setKey(b, "server.care_port", "6001"); err != nil {
		t.Fatalf("setting int: %v", err)
	}
	if b.ints["server.care_port"] != 6001 {
		t.Errorf("care_port = %d, want 6001", b.ints["server.care_port"])
	}
	if err := setKey(b, "care.session_ttl", "90m"); err != nil {
		t.Fatalf("setting duration: %v", err)
	}
	if b.durations["care.session_ttl"] != 90*time.Minute {
		t.Errorf("session_ttl = %v, want 90m", b.durations["care.session_ttl"])
	}
	if _, ok := b.strings["care.session_ttl"]; ok {
		t.Error("duration stored as a plain string")
	}

	cases := map[string]string{
		"server.care_port":   "abc",
		"care.session_ttl":   "forever",
		"completion.api_key": "sk-123",
		"no.such.key":        "x",
	}
	for key, value := range cases {
		if err := setKey(b, key, value); err == nil {
			t.Errorf("setKey(%q, %q) succeeded, want error", key, value)
		}
	}
}

func TestValidKeysExcludeSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		switch k {
		case "completion.api_key", "care.session_secret", "docstore.auth_token", "files.api_token":
			t.Errorf("ValidKeys contains secret %q", k)
		}
	}
	for _, info := range ShowAll(defaults()) {
		if strings.Contains(info.Key, "secret") || strings.HasSuffix(info.Key, "api_key") {
			t.Errorf("ShowAll exposes %q", info.Key)
		}
	}
	if got := SecretKeys(); len(got) != 2 {
		t.Errorf("SecretKeys = %v, want completion.api_key and care.session_secret", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	const name = "SPROUT_TEST_DOTENV_VALUE"
	os.Unsetenv(name)
	t.Cleanup(func() { os.Unsetenv(name) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(name+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv(name); got != "from-file" {
		t.Errorf("%s = %q, want from-file", name, got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env must be ignored, got %v", err)
	}
}
