package config

import (
	"strings"
	"time"
)

// GetDefaultConfig returns a fully-populated Config with sensible defaults,
// matching the defaults documented for each layer's own Config type.
func GetDefaultConfig() *Config {
	cfg := &Config{
		ShutdownTimeout: 30 * time.Second,
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// It is called after loading configuration from file and environment
// variables, to fill in any values the caller left at their zero value.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyHTTPIODefaults(&cfg.HTTPIO)
	applyBlockCacheDefaults(&cfg.BlockCache)
	applyZeroCacheDefaults(&cfg.ZeroCache)
	applyECProtectDefaults(&cfg.ECProtect)
	applyAdminDefaults(&cfg.Admin)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyHTTPIODefaults(cfg *HTTPIOConfig) {
	if cfg.CompressLevel == 0 {
		cfg.CompressLevel = 6
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxRetryPause == 0 {
		cfg.MaxRetryPause = 30 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

// applyBlockCacheDefaults mirrors blockcache.DefaultConfig.
func applyBlockCacheDefaults(cfg *BlockCacheConfig) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4096
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 16
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 1
	}
	if cfg.WriteDelay == 0 {
		cfg.WriteDelay = 100 * time.Millisecond
	}
	if cfg.MaxDirty == 0 {
		cfg.MaxDirty = 16
	}
	if cfg.ReadAhead == 0 {
		cfg.ReadAhead = 4
	}
	if cfg.ReadAheadTrigger == 0 {
		cfg.ReadAheadTrigger = 2
	}
}

// applyZeroCacheDefaults mirrors zerocache.DefaultConfig. It does not
// touch Enabled, so a config that omits zero_cache.enabled leaves the
// layer disabled; the template written by init sets it to true.
func applyZeroCacheDefaults(cfg *ZeroCacheConfig) {
	if cfg.MaxTrackedBlocks == 0 {
		cfg.MaxTrackedBlocks = 64 << 20
	}
}

// applyECProtectDefaults fills zero-valued EC protect settings with their
// defaults.
func applyECProtectDefaults(cfg *ECProtectConfig) {
	if cfg.MinWriteDelay == 0 {
		cfg.MinWriteDelay = 5 * time.Second
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 1024
	}
	if cfg.ReapInterval == 0 {
		cfg.ReapInterval = time.Second
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BootstrapUsername == "" {
		cfg.BootstrapUsername = "admin"
	}
}
