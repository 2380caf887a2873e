package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string // older variable names, read when env is unset
	secret  bool
	account string // secret store account, for secrets settable via SetSecret
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SPROUT_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.care_port", typ: kInt, env: "SPROUT_SERVER_CARE_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.CarePort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.CarePort },
	},
	{
		key: "server.files_port", typ: kInt, env: "SPROUT_SERVER_FILES_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.FilesPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.FilesPort },
	},
	{
		key: "log.level", typ: kString, env: "SPROUT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SPROUT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "docstore.backend", typ: kString, env: "SPROUT_DOCSTORE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.DocStore.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.DocStore.Backend },
	},
	{
		key: "docstore.base_url", typ: kString, env: "SPROUT_DOCSTORE_BASE_URL",
		aliases: []string{"FIREBASE_URL"},
		apply:   func(cfg *Config, v any) { cfg.DocStore.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.DocStore.BaseURL },
	},
	{
		key: "docstore.auth_token", typ: kString, env: "SPROUT_DOCSTORE_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.DocStore.AuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.DocStore.AuthToken },
	},
	{
		key: "docstore.timeout", typ: kDuration, env: "SPROUT_DOCSTORE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.DocStore.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.DocStore.Timeout },
	},
	{
		key: "completion.base_url", typ: kString, env: "SPROUT_COMPLETION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Completion.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.BaseURL },
	},
	{
		key: "completion.model", typ: kString, env: "SPROUT_COMPLETION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Completion.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.Model },
	},
	{
		key: "completion.api_key", typ: kString, env: "SPROUT_COMPLETION_API_KEY",
		aliases: []string{"OPENAI_API_KEY"},
		secret:  true, account: "completion_api_key",
		apply:   func(cfg *Config, v any) { cfg.Completion.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Completion.APIKey },
	},
	{
		key: "care.session_secret", typ: kString, env: "SPROUT_SESSION_SECRET",
		aliases: []string{"FLASK_SECRET_KEY"},
		secret:  true, account: "session_secret",
		apply:   func(cfg *Config, v any) { cfg.Care.SessionSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Care.SessionSecret },
	},
	{
		key: "care.session_ttl", typ: kDuration, env: "SPROUT_CARE_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Care.SessionTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Care.SessionTTL },
	},
	{
		key: "files.storage_dir", typ: kString, env: "SPROUT_FILES_STORAGE_DIR",
		apply:   func(cfg *Config, v any) { cfg.Files.StorageDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.StorageDir },
	},
	{
		key: "files.max_upload_mb", typ: kInt, env: "SPROUT_FILES_MAX_UPLOAD_MB",
		apply:   func(cfg *Config, v any) { cfg.Files.MaxUploadMB = v.(int) },
		extract: func(cfg Config) any { return cfg.Files.MaxUploadMB },
	},
	{
		key: "files.api_token", typ: kString, env: "SPROUT_FILES_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Files.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.APIToken },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetDuration(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func lookupEnv(s keySpec) (name, raw string) {
	if raw := os.Getenv(s.env); raw != "" {
		return s.env, raw
	}
	for _, alias := range s.aliases {
		if raw := os.Getenv(alias); raw != "" {
			return alias, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
