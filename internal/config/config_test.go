package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	if err := os.WriteFile(path, []byte(`storage_root = "/data/Storage"`+"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageRoot != "/data/Storage" {
		t.Errorf("StorageRoot = %q, want /data/Storage", cfg.StorageRoot)
	}
	if cfg.ChunkSize != defaultChunkSize {
		t.Errorf("ChunkSize = %d, want default %d", cfg.ChunkSize, defaultChunkSize)
	}
	if cfg.FieldPrintLen != defaultFieldPrintLen {
		t.Errorf("FieldPrintLen = %d, want default %d", cfg.FieldPrintLen, defaultFieldPrintLen)
	}
}

func TestLoad_ArchiveRequiresBucket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	body := "storage_root = \"/data\"\n[archive]\nregion = \"us-east-1\"\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for archive config without bucket")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/engine.toml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
