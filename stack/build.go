// Package stack assembles the four storage layers — block cache, zero
// cache, EC protect, and HTTP I/O — into a single store.Store from a
// loaded configuration. It lives outside package store to avoid the
// import cycle that would result from store depending on its own
// layer implementations.
package stack

import (
	"context"
	"fmt"

	"github.com/marmos91/s3block/blockcache"
	"github.com/marmos91/s3block/blockcache/journal"
	"github.com/marmos91/s3block/ecprotect"
	"github.com/marmos91/s3block/httpio"
	"github.com/marmos91/s3block/internal/logger"
	"github.com/marmos91/s3block/pkg/config"
	"github.com/marmos91/s3block/pkg/metrics"
	s3store "github.com/marmos91/s3block/store"
	"github.com/marmos91/s3block/zerocache"
)

// Option customizes Build's behavior.
type Option func(*buildOptions)

type buildOptions struct {
	clock  s3store.Clock
	logger s3store.Logger
}

// WithClock overrides the clock injected into the block cache and EC
// protect layers. Defaults to s3store.SystemClock{}.
func WithClock(c s3store.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// WithLogger overrides the logger injected into every layer. Defaults
// to the ambient stack's global logger (internal/logger.Default()).
func WithLogger(l s3store.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// Geometry extracts the block geometry Build uses to assemble the stack,
// for callers (such as the admin API) that need it without rebuilding.
func Geometry(cfg *config.Config) s3store.Config {
	return s3store.Config{
		BlockSize: uint32(cfg.BlockCache.BlockSize.Uint64()),
		NumBlocks: cfg.BlockCache.NumBlocks,
		ReadOnly:  cfg.BlockCache.ReadOnly,
	}
}

// Build wires the four layers bottom-up: httpio, optionally wrapped by
// ecprotect, optionally wrapped by zerocache, topped by blockcache. Each
// layer owns its next layer, so Destroy cascades downward through the
// returned store.Store.
func Build(ctx context.Context, cfg *config.Config) (s3store.Store, error) {
	return BuildWithOptions(ctx, cfg)
}

// BuildWithOptions is Build with functional options for overriding the
// clock and logger, primarily for deterministic tests.
func BuildWithOptions(ctx context.Context, cfg *config.Config, opts ...Option) (s3store.Store, error) {
	o := &buildOptions{
		clock:  s3store.SystemClock{},
		logger: logger.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	geo := s3store.Config{
		BlockSize: uint32(cfg.BlockCache.BlockSize.Uint64()),
		NumBlocks: cfg.BlockCache.NumBlocks,
		ReadOnly:  cfg.BlockCache.ReadOnly,
	}
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	httpioCfg := httpio.Config{
		Region:         cfg.HTTPIO.Region,
		Bucket:         cfg.HTTPIO.Bucket,
		Prefix:         cfg.HTTPIO.Prefix,
		AccessKey:      cfg.HTTPIO.AccessKey,
		SecretKey:      cfg.HTTPIO.SecretKey,
		SessionToken:   cfg.HTTPIO.SessionToken,
		Compress:       cfg.HTTPIO.Compress,
		CompressLevel:  cfg.HTTPIO.CompressLevel,
		Encrypt:        cfg.HTTPIO.Encrypt,
		Password:       cfg.HTTPIO.Password,
		KeyLength:      cfg.HTTPIO.KeyLength,
		NoVerify:       cfg.HTTPIO.NoVerify,
		MaxRetries:     cfg.HTTPIO.MaxRetries,
		MaxRetryPause:  cfg.HTTPIO.MaxRetryPause,
		Timeout:        cfg.HTTPIO.Timeout,
		Endpoint:       cfg.HTTPIO.Endpoint,
		ForcePathStyle: cfg.HTTPIO.ForcePathStyle,
	}

	client, err := httpio.NewS3ClientFromConfig(ctx, httpioCfg)
	if err != nil {
		return nil, fmt.Errorf("stack: building S3 client: %w", err)
	}

	var s s3store.Store
	s, err = httpio.Open(ctx, client, cfg.HTTPIO.Bucket, geo, httpioCfg, httpio.Options{
		Clock:   o.clock,
		Logger:  o.logger,
		Metrics: metrics.NewHTTPIOMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("stack: opening httpio layer: %w", err)
	}

	if cfg.ECProtect.Enabled {
		ecCfg := ecprotect.Config{
			MinWriteDelay: cfg.ECProtect.MinWriteDelay,
			CacheSize:     cfg.ECProtect.CacheSize,
			ReapInterval:  cfg.ECProtect.ReapInterval,
		}
		s = ecprotect.New(s, ecCfg, o.clock, o.logger, metrics.NewECProtectMetrics())
	}

	if cfg.ZeroCache.Enabled {
		zcCfg := zerocache.Config{MaxTrackedBlocks: cfg.ZeroCache.MaxTrackedBlocks}
		s, err = zerocache.New(ctx, s, geo, zcCfg, o.logger, metrics.NewZeroCacheMetrics())
		if err != nil {
			return nil, fmt.Errorf("stack: opening zerocache layer: %w", err)
		}
	}

	bcCfg := blockcache.Config{
		CacheSize:          cfg.BlockCache.CacheSize,
		NumThreads:         cfg.BlockCache.NumThreads,
		WriteDelay:         cfg.BlockCache.WriteDelay,
		MaxDirty:           cfg.BlockCache.MaxDirty,
		ReadAhead:          cfg.BlockCache.ReadAhead,
		ReadAheadTrigger:   cfg.BlockCache.ReadAheadTrigger,
		Synchronous:        cfg.BlockCache.Synchronous,
		NoVerify:           cfg.BlockCache.NoVerify,
		RecoverDirtyBlocks: cfg.BlockCache.RecoverDirtyBlocks,
	}

	j, err := buildJournal(cfg)
	if err != nil {
		return nil, err
	}

	top, err := blockcache.New(ctx, s, geo, bcCfg, o.clock, o.logger, j, metrics.NewBlockCacheMetrics())
	if err != nil {
		return nil, fmt.Errorf("stack: opening blockcache layer: %w", err)
	}

	return top, nil
}

// buildJournal opens the badger-backed dirty-block journal when a
// directory is configured, otherwise returns a no-op journal.
func buildJournal(cfg *config.Config) (journal.Journal, error) {
	if cfg.BlockCache.JournalDir == "" {
		return journal.NullJournal{}, nil
	}
	j, err := journal.Open(cfg.BlockCache.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("stack: opening dirty-block journal: %w", err)
	}
	return j, nil
}
