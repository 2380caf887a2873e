package config

import "time"

// ConfigBackend is the persistent layer between compiled defaults and
// environment overrides. It holds the values written by `sprout config set`:
// UserDefaults (domain com.sprout.app) on macOS, a JSON file under
// $XDG_CONFIG_HOME/sprout elsewhere. Secrets never pass through it.
//
// Getters report ok=false for unset keys. A value that is present but of
// the wrong type is an error.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetDuration(key string) (val time.Duration, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetDuration(key string, val time.Duration) error
	Delete(key string) error
}
