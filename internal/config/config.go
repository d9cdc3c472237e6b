// Package config loads the server's TOML configuration file and applies
// PUMPKINDB_-prefixed environment variable overrides, per spec.md §6.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
)

// Server holds the [server] table.
type Server struct {
	Port int `toml:"port"`
}

// Storage holds the [storage] table.
type Storage struct {
	Path       string `toml:"path"`
	MapSize    int    `toml:"mapsize"`
	MaxReaders int    `toml:"maxreaders"`
}

// Config is the full parsed configuration, with defaults applied for any
// key absent from the file.
type Config struct {
	Server  Server  `toml:"server"`
	Storage Storage `toml:"storage"`
}

// Default returns the configuration spec.md §6 specifies when no file or
// override is present.
func Default() Config {
	return Config{
		Server: Server{Port: 9981},
		Storage: Storage{
			Path:       "pumpkin.db",
			MaxReaders: 126,
		},
	}
}

// envPrefix is the prefix recognised for override variables, e.g.
// PUMPKINDB_SERVER_PORT, PUMPKINDB_STORAGE_MAXREADERS.
const envPrefix = "PUMPKINDB_"

// Load reads path (if it exists) over the defaults, then applies any
// PUMPKINDB_ environment overrides. A missing file is not an error — the
// defaults (plus any env overrides) stand on their own, matching the
// original engine's config_or_default pattern.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	overrides := map[string]func(string) error{
		"SERVER_PORT": func(v string) error {
			n, err := cast.ToIntE(v)
			if err != nil {
				return err
			}
			cfg.Server.Port = n
			return nil
		},
		"STORAGE_PATH": func(v string) error {
			cfg.Storage.Path = cast.ToString(v)
			return nil
		},
		"STORAGE_MAPSIZE": func(v string) error {
			n, err := cast.ToIntE(v)
			if err != nil {
				return err
			}
			cfg.Storage.MapSize = n
			return nil
		},
		"STORAGE_MAXREADERS": func(v string) error {
			n, err := cast.ToIntE(v)
			if err != nil {
				return err
			}
			cfg.Storage.MaxReaders = n
			return nil
		},
	}

	for _, env := range os.Environ() {
		k, v, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(k, envPrefix) {
			continue
		}
		key := strings.TrimPrefix(k, envPrefix)
		apply, known := overrides[key]
		if !known {
			continue
		}
		if err := apply(v); err != nil {
			return fmt.Errorf("config: env override %s: %w", k, err)
		}
	}
	return nil
}
