// Package zerocache elides I/O for all-zero blocks using a dense bitmap:
// one bit per block index, set when the block is known to be all-zero.
package zerocache

import (
	"context"
	"math/bits"
	"sync"

	s3store "github.com/marmos91/s3block/store"
)

// Config configures the zero cache layer.
type Config struct {
	// MaxTrackedBlocks caps how many blocks the bitmap will track. If
	// NumBlocks exceeds this, the layer becomes a pure pass-through (it
	// never special-cases zero blocks) rather than allocating an
	// unbounded bitmap.
	MaxTrackedBlocks uint32
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxTrackedBlocks: 64 << 20} // 64M blocks tracked by default
}

// bitmap is a dense, word-packed bit set, one bit per block index.
type bitmap struct {
	words []uint64
}

func newBitmap(n uint32) *bitmap {
	return &bitmap{words: make([]uint64, (n+63)/64)}
}

func (b *bitmap) set(i uint32)   { b.words[i/64] |= 1 << (i % 64) }
func (b *bitmap) clear(i uint32) { b.words[i/64] &^= 1 << (i % 64) }
func (b *bitmap) get(i uint32) bool {
	return b.words[i/64]&(1<<(i%64)) != 0
}

// forEachClear invokes fn for every index whose bit is NOT set (i.e. known
// non-zero), using word-level scanning instead of a per-bit loop.
func (b *bitmap) forEachClear(n uint32, fn func(idx uint32) error) error {
	for w, word := range b.words {
		inv := ^word
		base := uint32(w) * 64
		for inv != 0 {
			bitIdx := uint32(bits.TrailingZeros64(inv))
			idx := base + bitIdx
			inv &^= 1 << bitIdx
			if idx >= n {
				continue
			}
			if err := fn(idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Store wraps a next.Store, short-circuiting reads/writes of all-zero
// blocks via a dense bitmap populated at construction time.
type Store struct {
	next    s3store.Store
	cfg     Config
	geo     s3store.Config
	logger  s3store.Logger
	metrics Metrics

	mu      sync.RWMutex
	bm      *bitmap
	tracked bool // false once NumBlocks exceeds MaxTrackedBlocks: pure pass-through
}

// New constructs the zero cache layer atop next. It calls next.ListBlocks
// to determine which blocks are present, then sets every other bit.
func New(ctx context.Context, next s3store.Store, geo s3store.Config, cfg Config, logger s3store.Logger, metrics Metrics) (*Store, error) {
	if logger == nil {
		logger = s3store.NopLogger{}
	}
	s := &Store{next: next, cfg: cfg, geo: geo, logger: logger, metrics: metrics}

	if geo.NumBlocks > cfg.MaxTrackedBlocks {
		logger.Warn("zerocache: num_blocks exceeds max_tracked_blocks, operating as pass-through",
			"num_blocks", geo.NumBlocks, "max_tracked_blocks", cfg.MaxTrackedBlocks)
		return s, nil
	}

	bm := newBitmap(geo.NumBlocks)
	for i := uint32(0); i < geo.NumBlocks; i++ {
		bm.set(i)
	}
	err := next.ListBlocks(ctx, func(idx uint32) error {
		if idx < geo.NumBlocks {
			bm.clear(idx)
		}
		return nil
	})
	if err != nil {
		return nil, &s3store.Error{Kind: s3store.KindIO, Op: "zerocache.New", Err: err}
	}

	s.bm = bm
	s.tracked = true
	return s, nil
}

func (s *Store) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (int, error) {
	if s.tracked {
		s.mu.RLock()
		isZero := s.bm.get(idx)
		s.mu.RUnlock()
		if isZero {
			for i := range buf {
				buf[i] = 0
			}
			recordElidedRead(s.metrics)
			return len(buf), nil
		}
	}
	return s.next.Read(ctx, idx, buf, expectHash)
}

func (s *Store) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	allZero := isAllZero(buf)

	if allZero {
		_, err := s.next.Write(ctx, idx, nil)
		if err != nil {
			return s3store.Hash{}, err
		}
		if s.tracked {
			s.mu.Lock()
			s.bm.set(idx)
			s.mu.Unlock()
		}
		recordElidedWrite(s.metrics)
		return s3store.Hash{}, nil
	}

	hash, err := s.next.Write(ctx, idx, buf)
	if err != nil {
		return s3store.Hash{}, err
	}
	if s.tracked {
		s.mu.Lock()
		s.bm.clear(idx)
		s.mu.Unlock()
	}
	return hash, nil
}

func isAllZero(buf []byte) bool {
	if buf == nil {
		return true
	}
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func (s *Store) ListBlocks(ctx context.Context, fn func(idx uint32) error) error {
	return s.next.ListBlocks(ctx, fn)
}

func (s *Store) Flush(ctx context.Context) error {
	return s.next.Flush(ctx)
}

// SurveyNonZero reports blocks currently known not to be all-zero, read
// directly from the local bitmap rather than the network when tracked.
func (s *Store) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	if !s.tracked {
		return s.next.SurveyNonZero(ctx, fn)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.forEachClear(s.geo.NumBlocks, fn)
}

func (s *Store) Shutdown(ctx context.Context) error {
	return s.next.Shutdown(ctx)
}

func (s *Store) Destroy(ctx context.Context) error {
	return s.next.Destroy(ctx)
}

var _ s3store.Store = (*Store)(nil)
