package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Example returns the configuration written by Save when no file exists
// yet: the built-in defaults spelled out so they can be edited.
func Example() Config {
	str := func(s string) *string { return &s }
	retries := 3
	return Config{
		Defaults: DefaultsConfig{
			OnConflict: str("abort"),
			OnError:    str("abort"),
			Retries:    &retries,
			BlockSize:  str("1MiB"),
		},
		Archives: []ArchiveRule{
			{Codec: "zip", Patterns: []string{"*.zip", "*.jar"}},
			{Codec: "tar.gz", Patterns: []string{"*.tar.gz", "*.tgz"}},
			{Codec: "tar.zst", Patterns: []string{"*.tar.zst", "*.tzst"}},
			{Codec: "tar", Patterns: []string{"*.tar"}},
		},
	}
}

// Save writes cfg to path, creating the parent directory if needed. An
// existing file is replaced.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	//nolint:gosec // G306: config is not secret
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
