package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func minimalConfigYAML() string {
	return `
logging:
  level: "INFO"

httpio:
  bucket: "test-bucket"
  region: "us-east-1"

blockcache:
  block_size: 4096
  num_blocks: 1024
  cache_size: 16
`
}

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(minimalConfigYAML()), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.HTTPIO.Bucket != "test-bucket" {
		t.Errorf("Expected bucket 'test-bucket', got %q", cfg.HTTPIO.Bucket)
	}
	if cfg.BlockCache.BlockSize != 4096 {
		t.Errorf("Expected block_size 4096, got %d", cfg.BlockCache.BlockSize)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config, so the
	// server can run with sensible defaults for quick local testing.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_ByteSizeParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
httpio:
  bucket: "test-bucket"

blockcache:
  block_size: "4Ki"
  num_blocks: 1024
  cache_size: 16
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.BlockCache.BlockSize != 4096 {
		t.Errorf("Expected block_size 4096 from '4Ki', got %d", cfg.BlockCache.BlockSize)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Admin.BootstrapUsername != "admin" {
		t.Errorf("Expected default admin bootstrap username 'admin', got %q", cfg.Admin.BootstrapUsername)
	}
	if cfg.BlockCache.BlockSize != 4096 {
		t.Errorf("Expected default block size 4096, got %d", cfg.BlockCache.BlockSize)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "s3block" {
		t.Errorf("Expected directory name 's3block', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	_ = os.Setenv("S3BLOCK_LOGGING_LEVEL", "ERROR")
	_ = os.Setenv("S3BLOCK_HTTPIO_BUCKET", "env-bucket")
	defer func() {
		_ = os.Unsetenv("S3BLOCK_LOGGING_LEVEL")
		_ = os.Unsetenv("S3BLOCK_HTTPIO_BUCKET")
	}()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(minimalConfigYAML()), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.HTTPIO.Bucket != "env-bucket" {
		t.Errorf("Expected bucket 'env-bucket' from env var, got %q", cfg.HTTPIO.Bucket)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.HTTPIO.Bucket = "roundtrip-bucket"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}

	if loaded.HTTPIO.Bucket != "roundtrip-bucket" {
		t.Errorf("Expected bucket 'roundtrip-bucket', got %q", loaded.HTTPIO.Bucket)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Failed to stat saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", info.Mode().Perm())
	}
}
