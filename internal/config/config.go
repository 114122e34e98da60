package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/bamsammich/arcfs/internal/archive"
)

// Config represents the optional arcfs configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Archives []ArchiveRule  `toml:"archive"`
	Plugins  []PluginRule   `toml:"plugin"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	OnConflict *string `toml:"on_conflict"`
	OnError    *string `toml:"on_error"`
	Retries    *int    `toml:"retries"`
	BlockSize  *string `toml:"block_size"`
	BWLimit    *string `toml:"bwlimit"`
}

// ArchiveRule maps file name patterns to a built-in codec.
type ArchiveRule struct {
	Codec    string   `toml:"codec"`
	Patterns []string `toml:"patterns"`
}

// PluginRule maps file name patterns to a codec loaded from a shared object.
type PluginRule struct {
	Path     string   `toml:"path"`
	Patterns []string `toml:"patterns"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "arcfs", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// BlockSizeBytes returns the parsed block_size default, or 0 when unset.
func (d DefaultsConfig) BlockSizeBytes() (int, error) {
	if d.BlockSize == nil {
		return 0, nil
	}
	n, err := humanize.ParseBytes(*d.BlockSize)
	if err != nil {
		return 0, fmt.Errorf("block_size: %w", err)
	}
	if n == 0 || n > 1<<30 {
		return 0, fmt.Errorf("block_size %q out of range", *d.BlockSize)
	}
	return int(n), nil
}

// BWLimitBytes returns the parsed bwlimit default in bytes per second, or 0
// when unset.
func (d DefaultsConfig) BWLimitBytes() (int64, error) {
	if d.BWLimit == nil {
		return 0, nil
	}
	n, err := humanize.ParseBytes(*d.BWLimit)
	if err != nil {
		return 0, fmt.Errorf("bwlimit: %w", err)
	}
	return int64(n), nil //nolint:gosec // G115: bandwidth fits in int64
}

// Catalog builds the archive catalog: plugin rules first, then archive
// rules, then the built-in defaults. A plugin that fails to load is left out
// and its error is returned alongside the usable catalog.
func Catalog(cfg Config) (*archive.Catalog, error) {
	cat := archive.NewCatalog()
	var errs []error
	for _, p := range cfg.Plugins {
		codec, err := archive.LoadPlugin(p.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, register(cat, codec, p.Patterns)...)
	}
	for _, a := range cfg.Archives {
		codec, err := archive.Lookup(a.Codec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, register(cat, codec, a.Patterns)...)
	}
	cat.RegisterDefaults()
	return cat, errors.Join(errs...)
}

func register(cat *archive.Catalog, codec archive.Codec, patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if err := cat.Register(p, codec); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
