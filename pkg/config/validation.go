package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config against its `validate` struct tags and a
// handful of cross-field invariants the tags alone can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if cfg.BlockCache.BlockSize == 0 || cfg.BlockCache.BlockSize&(cfg.BlockCache.BlockSize-1) != 0 {
		return fmt.Errorf("blockcache.block_size must be a non-zero power of two, got %s", cfg.BlockCache.BlockSize)
	}

	if cfg.BlockCache.NumBlocks == 0 {
		return fmt.Errorf("blockcache.num_blocks must be non-zero")
	}

	if cfg.HTTPIO.Encrypt && cfg.HTTPIO.Password == "" {
		return fmt.Errorf("httpio.password is required when httpio.encrypt is true")
	}

	if cfg.Admin.Enabled && cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required when admin.enabled is true")
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry.enabled is true")
	}

	return nil
}
