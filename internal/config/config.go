package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const keychainService = "sprout"

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Storage    StorageConfig
	DocStore   DocStoreConfig
	Completion CompletionConfig
	Care       CareConfig
	Files      FilesConfig
}

type ServerConfig struct {
	Host      string
	CarePort  int
	FilesPort int
}

type LogConfig struct {
	Level string
}

type StorageConfig struct {
	DataDir string
}

type DocStoreConfig struct {
	Backend   string
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type CompletionConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type CareConfig struct {
	SessionSecret string
	SessionTTL    time.Duration
}

type FilesConfig struct {
	StorageDir  string
	MaxUploadMB int
	APIToken    string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			CarePort:  5001,
			FilesPort: 5000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		DocStore: DocStoreConfig{
			Backend: "http",
			Timeout: 10 * time.Second,
		},
		Completion: CompletionConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Care: CareConfig{
			SessionTTL: 24 * time.Hour,
		},
		Files: FilesConfig{
			MaxUploadMB: 500,
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret
// store.
//
// On macOS the backend is UserDefaults (domain: com.sprout.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/sprout/config.json
// and secrets fall back to $XDG_DATA_HOME/sprout/secrets.json.
//
// Environment variables (SPROUT_*, plus FIREBASE_URL, OPENAI_API_KEY and
// FLASK_SECRET_KEY) override backend values on all platforms. Variables
// already set in the environment win over the .env file.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	applySecretStore(&cfg, kc)

	if cfg.Files.StorageDir == "" {
		cfg.Files.StorageDir = filepath.Join(cfg.Storage.DataDir, "storage")
	}

	return cfg, nil
}

// applySecretStore fills secrets that are still empty from the platform
// secret store.
func applySecretStore(cfg *Config, kc keychain) {
	for _, s := range specs {
		if s.account == "" || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ValidateCare reports every setting the care service cannot start without.
func (c Config) ValidateCare() error {
	var missing []string
	if c.Completion.APIKey == "" {
		missing = append(missing, "completion API key (SPROUT_COMPLETION_API_KEY or OPENAI_API_KEY"+apiKeyHint()+")")
	}
	if c.Care.SessionSecret == "" {
		missing = append(missing, "session secret (SPROUT_SESSION_SECRET or FLASK_SECRET_KEY)")
	}
	if c.DocStore.Backend == "http" && c.DocStore.BaseURL == "" {
		missing = append(missing, "document store URL (docstore.base_url, SPROUT_DOCSTORE_BASE_URL or FIREBASE_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
