package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/s3block/internal/bytesize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the s3block server configuration.
//
// It captures the static configuration needed to assemble the storage
// pipeline (block cache, zero cache, EC protect, HTTP I/O), the ambient
// operational surface (logging, telemetry), and the admin control API.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (S3BLOCK_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown,
	// including draining in-flight flushes from the block cache.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// HTTPIO configures the bottommost layer: the S3-compatible object
	// store backend.
	HTTPIO HTTPIOConfig `mapstructure:"httpio" yaml:"httpio"`

	// BlockCache configures the topmost layer: the in-memory dirty-block
	// cache and its background flush workers.
	BlockCache BlockCacheConfig `mapstructure:"blockcache" yaml:"blockcache"`

	// ZeroCache configures the all-zero block short-circuit layer.
	ZeroCache ZeroCacheConfig `mapstructure:"zerocache" yaml:"zerocache"`

	// ECProtect configures the read-after-write content verification layer.
	ECProtect ECProtectConfig `mapstructure:"ecprotect" yaml:"ecprotect"`

	// Admin contains the admin/control HTTP API configuration.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server are enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// HTTPIOConfig configures the S3-compatible object store backend.
type HTTPIOConfig struct {
	// Region is the S3 region.
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket is the S3 bucket name holding block objects.
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`

	// AccessKey is the S3 access key ID. May be left empty to use the
	// default AWS credential chain.
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`

	// SecretKey is the S3 secret access key.
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`

	// SessionToken is an optional STS session token.
	SessionToken string `mapstructure:"session_token" yaml:"session_token,omitempty"`

	// Compress enables flate compression of block payloads before upload.
	Compress bool `mapstructure:"compress" yaml:"compress"`

	// CompressLevel is the flate compression level (1-9).
	CompressLevel int `mapstructure:"compress_level" validate:"omitempty,min=1,max=9" yaml:"compress_level,omitempty"`

	// Encrypt enables payload encryption with the configured password.
	Encrypt bool `mapstructure:"encrypt" yaml:"encrypt"`

	// Password is the passphrase blocks are encrypted under. Required
	// when Encrypt is true.
	Password string `mapstructure:"password" validate:"required_if=Encrypt true" yaml:"password,omitempty"`

	// KeyLength is the derived key length in bytes (16, 24, or 32).
	KeyLength int `mapstructure:"keyLength" validate:"omitempty,oneof=16 24 32" yaml:"keyLength,omitempty"`

	// NoVerify disables checksum verification of downloaded blocks.
	NoVerify bool `mapstructure:"no_verify" yaml:"no_verify"`

	// MaxRetries is the maximum number of retry attempts for a failed request.
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,min=0" yaml:"max_retries,omitempty"`

	// MaxRetryPause is the maximum backoff pause between retries.
	MaxRetryPause time.Duration `mapstructure:"max_retry_pause" yaml:"max_retry_pause,omitempty"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible backends.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// ForcePathStyle forces path-style S3 addressing, required by most
	// non-AWS S3-compatible backends.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// BlockCacheConfig configures the in-memory dirty-block cache.
type BlockCacheConfig struct {
	// BlockSize is the fixed size of every block, in bytes. Must be a
	// power of two. Accepts human-readable sizes such as "4Ki".
	BlockSize bytesize.ByteSize `mapstructure:"block_size" validate:"required" yaml:"block_size"`

	// NumBlocks is the total number of addressable blocks in the device.
	NumBlocks uint32 `mapstructure:"num_blocks" validate:"required" yaml:"num_blocks"`

	// ReadOnly mounts the device read-only; writes are rejected.
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// CacheSize is the number of blocks held in memory at once.
	CacheSize int `mapstructure:"cache_size" validate:"required,gt=0" yaml:"cache_size"`

	// NumThreads is the number of background flush workers.
	NumThreads int `mapstructure:"num_threads" validate:"omitempty,gt=0" yaml:"num_threads,omitempty"`

	// WriteDelay is how long a dirty block waits before becoming eligible
	// for background flush.
	WriteDelay time.Duration `mapstructure:"write_delay" yaml:"write_delay"`

	// MaxDirty is the maximum number of dirty blocks tolerated; once it is
	// reached, a write to a block not already cached waits until a
	// background write-back drains a dirty block.
	MaxDirty int `mapstructure:"max_dirty" validate:"omitempty,gt=0" yaml:"max_dirty,omitempty"`

	// ReadAhead is the number of sequential blocks to prefetch once
	// sequential access is detected.
	ReadAhead int `mapstructure:"read_ahead" yaml:"read_ahead"`

	// ReadAheadTrigger is the number of consecutive sequential reads
	// required to trigger read-ahead.
	ReadAheadTrigger int `mapstructure:"read_ahead_trigger" yaml:"read_ahead_trigger"`

	// Synchronous forces every write to flush before returning.
	Synchronous bool `mapstructure:"synchronous" yaml:"synchronous"`

	// NoVerify disables checksum verification on cache fills.
	NoVerify bool `mapstructure:"no_verify" yaml:"no_verify"`

	// RecoverDirtyBlocks replays the dirty-block journal on startup
	// instead of discarding it.
	RecoverDirtyBlocks bool `mapstructure:"recover_dirty_blocks" yaml:"recover_dirty_blocks"`

	// JournalDir is the directory holding the badger-backed dirty-block
	// recovery journal. Empty disables the journal: dirty blocks not yet
	// flushed are lost on an unclean shutdown.
	JournalDir string `mapstructure:"journal_dir" validate:"required_if=RecoverDirtyBlocks true" yaml:"journal_dir,omitempty"`
}

// ZeroCacheConfig configures the all-zero block short-circuit layer.
type ZeroCacheConfig struct {
	// Enabled controls whether the zero cache layer is inserted into the
	// pipeline. Disabling it routes every block straight to EC protect
	// (or HTTP I/O when EC protect is also disabled).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxTrackedBlocks bounds the number of block indices the zero bitmap
	// may cover. When num_blocks exceeds it, the zero cache tracks nothing
	// and passes every operation straight through.
	MaxTrackedBlocks uint32 `mapstructure:"max_tracked_blocks" validate:"omitempty,gt=0" yaml:"max_tracked_blocks,omitempty"`
}

// ECProtectConfig configures the read-after-write verification layer.
type ECProtectConfig struct {
	// Enabled controls whether the EC protect layer is inserted into the
	// pipeline.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MinWriteDelay is the minimum time EC protect waits after a write
	// before it is willing to verify it against the backend.
	MinWriteDelay time.Duration `mapstructure:"min_write_delay" yaml:"min_write_delay"`

	// CacheSize bounds the number of outstanding write-protected entries
	// tracked in memory.
	CacheSize int `mapstructure:"md5_cache_size" validate:"omitempty,gt=0" yaml:"md5_cache_size,omitempty"`

	// ReapInterval is how often the background reaper scans for blocks
	// that are due for verification.
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
}

// AdminConfig contains the admin/control HTTP API configuration.
type AdminConfig struct {
	// Enabled controls whether the admin HTTP API is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the admin API listens on, e.g. ":8090".
	ListenAddr string `mapstructure:"listen_addr" validate:"required_if=Enabled true" yaml:"listen_addr,omitempty"`

	// JWTSecret signs and verifies admin API bearer tokens. Required
	// when Enabled is true.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true" yaml:"jwt_secret,omitempty"`

	// TokenTTL is the lifetime of an issued admin API token.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl,omitempty"`

	// BootstrapUsername is the initial admin principal created by
	// 's3block init', used to mint the first token.
	BootstrapUsername string `mapstructure:"bootstrap_username" yaml:"bootstrap_username,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (S3BLOCK_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages, pointing the
// caller at 's3block init' if no config file exists yet.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  s3block init\n\n"+
				"Or specify a custom config file:\n"+
				"  s3block <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  s3block init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format, respecting yaml tags.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: config files may contain S3 credentials and the admin JWT secret.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the S3BLOCK_ prefix and underscores.
	// Example: S3BLOCK_HTTPIO_BUCKET=my-bucket
	v.SetEnvPrefix("S3BLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use human-readable sizes like "4Ki" or "64Mi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings and numbers to time.Duration, so
// config files can use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/s3block, or falls
// back to the current directory if the home directory can't be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "s3block")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "s3block")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
