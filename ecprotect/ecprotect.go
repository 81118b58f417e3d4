// Package ecprotect compensates for the eventual-consistency semantics of
// the underlying object store: it enforces a minimum delay between a
// write/delete of a block and any read of that block being allowed to hit
// the network, and it serializes concurrent writes to the same index so
// that only the newest payload is ever propagated downstream.
package ecprotect

import (
	"context"
	"sync"
	"time"

	s3store "github.com/marmos91/s3block/store"
)

// Config configures the EC protect layer.
type Config struct {
	// MinWriteDelay is the minimum time a write/delete's effects are held
	// locally before a read is allowed to fall through to the network.
	MinWriteDelay time.Duration

	// CacheSize bounds the number of outstanding entries (indices with
	// recent write activity being tracked). Overflow blocks the caller
	// until an entry expires.
	CacheSize int

	// ReapInterval controls how often expired entries are swept. Defaults
	// to MinWriteDelay/4 when zero.
	ReapInterval time.Duration
}

type entryState int

const (
	stateClean entryState = iota
	stateWriting
	stateWritten
)

type pendingWrite struct {
	buf     []byte
	waiters []chan writeResult
}

type writeResult struct {
	hash s3store.Hash
	err  error
}

type entry struct {
	mu        sync.Mutex
	idx       uint32
	state     entryState
	data      []byte // remembered bytes (nil means "remembered all-zero")
	hash      s3store.Hash
	writtenAt time.Time
	busy      bool
	pending   *pendingWrite
}

// Store wraps a next.Store with eventual-consistency protection.
type Store struct {
	next    s3store.Store
	cfg     Config
	clock   s3store.Clock
	logger  s3store.Logger
	metrics Metrics

	mu    sync.Mutex
	cond  *sync.Cond
	byIdx map[uint32]*entry

	stopReaper chan struct{}
	reaperDone chan struct{}
}

// New constructs the EC protect layer atop next.
func New(next s3store.Store, cfg Config, clock s3store.Clock, logger s3store.Logger, metrics Metrics) *Store {
	if clock == nil {
		clock = s3store.SystemClock{}
	}
	if logger == nil {
		logger = s3store.NopLogger{}
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.MinWriteDelay / 4
		if cfg.ReapInterval <= 0 {
			cfg.ReapInterval = 50 * time.Millisecond
		}
	}
	s := &Store{
		next:       next,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		byIdx:      make(map[uint32]*entry),
		stopReaper: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.reapLoop()
	return s
}

func (s *Store) reapLoop() {
	defer close(s.reaperDone)
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopReaper:
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *Store) reapExpired() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, e := range s.byIdx {
		e.mu.Lock()
		expired := e.state == stateWritten && !e.busy && e.pending == nil &&
			now.Sub(e.writtenAt) >= s.cfg.MinWriteDelay
		e.mu.Unlock()
		if expired {
			delete(s.byIdx, idx)
		}
	}
	recordOutstandingEntries(s.metrics, len(s.byIdx))
	s.cond.Broadcast()
}

// getOrCreate returns the entry for idx, blocking if the outstanding-entry
// bound is reached and idx does not already have an entry (back-pressure).
func (s *Store) getOrCreate(ctx context.Context, idx uint32) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if e, ok := s.byIdx[idx]; ok {
			return e, nil
		}
		if s.cfg.CacheSize <= 0 || len(s.byIdx) < s.cfg.CacheSize {
			e := &entry{idx: idx}
			s.byIdx[idx] = e
			recordOutstandingEntries(s.metrics, len(s.byIdx))
			return e, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.cond.Wait()
	}
}

func (s *Store) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (int, error) {
	s.mu.Lock()
	e, ok := s.byIdx[idx]
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		withinWindow := e.state == stateWritten && s.clock.Now().Sub(e.writtenAt) < s.cfg.MinWriteDelay
		var data []byte
		if withinWindow {
			data = e.data
		}
		e.mu.Unlock()

		if withinWindow {
			recordServedFromWindow(s.metrics)
			if data == nil {
				for i := range buf {
					buf[i] = 0
				}
				return len(buf), nil
			}
			n := copy(buf, data)
			return n, nil
		}
	}

	return s.next.Read(ctx, idx, buf, expectHash)
}

func (s *Store) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	e, err := s.getOrCreate(ctx, idx)
	if err != nil {
		return s3store.Hash{}, err
	}

	e.mu.Lock()
	if e.busy {
		ch := make(chan writeResult, 1)
		if e.pending == nil {
			e.pending = &pendingWrite{buf: buf}
		} else {
			e.pending.buf = buf // newest payload supersedes any queued one
		}
		e.pending.waiters = append(e.pending.waiters, ch)
		e.mu.Unlock()
		recordCoalescedWrite(s.metrics)

		select {
		case res := <-ch:
			return res.hash, res.err
		case <-ctx.Done():
			return s3store.Hash{}, ctx.Err()
		}
	}
	e.busy = true
	e.mu.Unlock()

	return s.runWrite(ctx, e, idx, buf)
}

// runWrite performs the downstream write for buf, then drains any payload
// that queued up while it was in flight, looping until no more writes are
// pending. Each loop iteration's result is delivered only to the waiters
// that coalesced onto that iteration's payload: the caller that invoked
// runWrite directly receives the result of its own buf (the first
// iteration); everyone who queued while a write was in flight shares the
// result of whatever superseding payload actually got sent.
func (s *Store) runWrite(ctx context.Context, e *entry, idx uint32, buf []byte) (s3store.Hash, error) {
	var firstResult writeResult
	first := true
	var waitersToNotify []chan writeResult

	for {
		hash, err := s.next.Write(ctx, idx, buf)

		e.mu.Lock()
		if err == nil {
			e.state = stateWritten
			if buf == nil {
				e.data = nil
			} else {
				e.data = append([]byte(nil), buf...)
			}
			e.hash = hash
			e.writtenAt = s.clock.Now()
		}
		pending := e.pending
		e.pending = nil
		if pending == nil {
			e.busy = false
		}
		e.mu.Unlock()

		if first {
			firstResult = writeResult{hash: hash, err: err}
			first = false
		} else {
			for _, ch := range waitersToNotify {
				ch <- writeResult{hash: hash, err: err}
			}
		}

		if pending == nil {
			return firstResult.hash, firstResult.err
		}
		waitersToNotify = pending.waiters
		buf = pending.buf
	}
}

func (s *Store) ListBlocks(ctx context.Context, fn func(idx uint32) error) error {
	return s.next.ListBlocks(ctx, fn)
}

func (s *Store) Flush(ctx context.Context) error {
	return s.next.Flush(ctx)
}

func (s *Store) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	return s.next.SurveyNonZero(ctx, fn)
}

func (s *Store) Shutdown(ctx context.Context) error {
	close(s.stopReaper)
	<-s.reaperDone
	return s.next.Shutdown(ctx)
}

func (s *Store) Destroy(ctx context.Context) error {
	return s.next.Destroy(ctx)
}

var _ s3store.Store = (*Store)(nil)
