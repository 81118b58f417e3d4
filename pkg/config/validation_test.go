package config

import (
	"strings"
	"testing"
)

func validConfigForTests() *Config {
	cfg := GetDefaultConfig()
	cfg.HTTPIO.Bucket = "test-bucket"
	cfg.BlockCache.NumBlocks = 1024
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfigForTests()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Metrics.Port = 70000 // out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_MissingBucket(t *testing.T) {
	cfg := validConfigForTests()
	cfg.HTTPIO.Bucket = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing bucket")
	}
}

func TestValidate_BlockSizeNotPowerOfTwo(t *testing.T) {
	cfg := validConfigForTests()
	cfg.BlockCache.BlockSize = 4097

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for non-power-of-two block size")
	}
	if !strings.Contains(err.Error(), "power of two") {
		t.Errorf("Expected 'power of two' validation error, got: %v", err)
	}
}

func TestValidate_MissingNumBlocks(t *testing.T) {
	cfg := validConfigForTests()
	cfg.BlockCache.NumBlocks = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing num_blocks")
	}
}

func TestValidate_EncryptWithoutPassword(t *testing.T) {
	cfg := validConfigForTests()
	cfg.HTTPIO.Encrypt = true
	cfg.HTTPIO.Password = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for encrypt enabled without password")
	}
}

func TestValidate_AdminEnabledWithoutJWTSecret(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Admin.Enabled = true
	cfg.Admin.JWTSecret = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for admin enabled without jwt_secret")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRateOutOfRange(t *testing.T) {
	cfg := validConfigForTests()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := validConfigForTests()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validate should not normalize; normalization is ApplyDefaults' job.
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
