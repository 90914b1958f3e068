package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"bunkerlink/internal/domain"
)

// StoreKind selects the session store backend.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreSealed StoreKind = "sealed"
	StoreSQLite StoreKind = "sqlite"
	StoreBadger StoreKind = "badger"
)

// ConfigFile is the name of the configuration file inside Home.
const ConfigFile = "config.toml"

// Config holds runtime wiring options for building the app.
type Config struct {
	Home               string        // state directory, e.g. $HOME/.bunkerlink
	Store              StoreKind     // session store backend
	Passphrase         string        // required for StoreSealed
	LogLevel           string        // trace, debug, info, warn, error
	LogFormat          string        // console or json
	RequirePermissions bool          // reject nostrconnect URIs without perms
	DialTimeout        time.Duration // per-relay connection timeout
	Bus                domain.Bus    // optional; defaults to a websocket relay pool
	OnAuth             func(requestID, url string)
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig(home string) Config {
	return Config{
		Home:        home,
		Store:       StoreFile,
		LogLevel:    "info",
		LogFormat:   "console",
		DialTimeout: 10 * time.Second,
	}
}

type fileConfig struct {
	Store              string `toml:"store"`
	LogLevel           string `toml:"log_level"`
	LogFormat          string `toml:"log_format"`
	RequirePermissions bool   `toml:"require_permissions"`
	DialTimeout        string `toml:"dial_timeout"`
}

// LoadConfigFile applies the keys present in the TOML file at path to cfg.
// A missing file leaves cfg unchanged.
func LoadConfigFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("store") {
		kind, err := ParseStoreKind(raw.Store)
		if err != nil {
			return err
		}
		cfg.Store = kind
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("require_permissions") {
		cfg.RequirePermissions = raw.RequirePermissions
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.DialTimeout = d
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return nil
}

// ParseStoreKind validates a store backend name.
func ParseStoreKind(raw string) (StoreKind, error) {
	switch k := StoreKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case StoreFile, StoreSealed, StoreSQLite, StoreBadger:
		return k, nil
	default:
		return "", fmt.Errorf("unknown store %q (want file, sealed, sqlite or badger)", raw)
	}
}
