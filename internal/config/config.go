// Package config loads the engine's environmental configuration from TOML.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// EngineConfig holds the named parameters described in spec §6: the
// storage root, ingest directory, sort workspace, chunking parameters
// and print width.
type EngineConfig struct {
	StorageRoot   string         `toml:"storage_root"`
	IngestDir     string         `toml:"ingest_dir"`
	TempDir       string         `toml:"temp_dir"`
	ChunkSize     int            `toml:"chunk_size"`
	FieldPrintLen int            `toml:"field_print_len"`
	Archive       *ArchiveConfig `toml:"archive,omitempty"`
}

// ArchiveConfig configures the optional S3-compatible cold-archive tier
// that internal/store/archive uploads sealed chunks to. Nil means archival
// is disabled, which is the default.
type ArchiveConfig struct {
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region,omitempty"`
	Endpoint string `toml:"endpoint,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
}

const (
	defaultChunkSize     = 100
	defaultFieldPrintLen = 16
)

// Default returns an EngineConfig with the documented defaults and
// directories rooted at the current working directory, suitable for tests
// and quick local runs.
func Default() EngineConfig {
	return EngineConfig{
		StorageRoot:   "./Storage",
		IngestDir:     "./ToBeLoaded",
		TempDir:       "./Temp",
		ChunkSize:     defaultChunkSize,
		FieldPrintLen: defaultFieldPrintLen,
	}
}

// Load reads an EngineConfig from a TOML file at path, applying defaults
// for any field left unset, the way sidechain's LoadGlobalConfig does.
func Load(path string) (EngineConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	decoder := toml.NewDecoder(file)
	if _, err := decoder.Decode(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return EngineConfig{}, err
	}

	return cfg, nil
}

func (c *EngineConfig) applyDefaults() error {
	if c.StorageRoot == "" {
		c.StorageRoot = "./Storage"
	}
	if c.IngestDir == "" {
		c.IngestDir = "./ToBeLoaded"
	}
	if c.TempDir == "" {
		c.TempDir = "./Temp"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.FieldPrintLen < 6 {
		c.FieldPrintLen = defaultFieldPrintLen
	}
	if c.Archive != nil && c.Archive.Bucket == "" {
		return fmt.Errorf("archive config requires a bucket name")
	}
	return nil
}
