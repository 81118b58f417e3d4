// Package blockcache implements the write-back block cache: the
// outermost layer of the stack, providing read-ahead, single-flight
// dedup, bounded dirty-set write-back, and LRU eviction of clean entries.
package blockcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/s3block/blockcache/journal"
	s3store "github.com/marmos91/s3block/store"
)

// Config configures the block cache layer, matching spec.md §4.1's
// {cache_size, num_threads, write_delay, max_dirty, read_ahead,
// read_ahead_trigger, synchronous, no_verify, recover_dirty_blocks}.
type Config struct {
	CacheSize          int
	NumThreads         int
	WriteDelay         time.Duration
	MaxDirty           int
	ReadAhead          int
	ReadAheadTrigger   int
	Synchronous        bool
	NoVerify           bool
	RecoverDirtyBlocks bool
}

// DefaultConfig matches the end-to-end scenario defaults in spec.md §8.
func DefaultConfig() Config {
	return Config{
		CacheSize:        16,
		NumThreads:       1,
		WriteDelay:       100 * time.Millisecond,
		MaxDirty:         16,
		ReadAhead:        4,
		ReadAheadTrigger: 2,
	}
}

// Store is the block cache layer.
type Store struct {
	next    s3store.Store
	geo     s3store.Config
	cfg     Config
	clock   s3store.Clock
	logger  s3store.Logger
	journal journal.Journal
	metrics Metrics

	mu        sync.Mutex
	cond      *sync.Cond
	entries   map[uint32]*entry
	cleanList *list.List // front = most-recently-used, back = eviction candidate
	dirtyList *list.List // front = oldest dirty, back = newest

	sf singleflight.Group

	workCh chan uint32
	stopCh chan struct{}
	wg     sync.WaitGroup

	lastReadIdx int64
	seqCount    int

	shuttingDown bool
}

// New constructs the block cache atop next.
func New(ctx context.Context, next s3store.Store, geo s3store.Config, cfg Config, clock s3store.Clock, logger s3store.Logger, j journal.Journal, metrics Metrics) (*Store, error) {
	if clock == nil {
		clock = s3store.SystemClock{}
	}
	if logger == nil {
		logger = s3store.NopLogger{}
	}
	if j == nil {
		j = journal.NullJournal{}
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = 1
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 16
	}

	s := &Store{
		next:        next,
		geo:         geo,
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
		journal:     j,
		metrics:     metrics,
		entries:     make(map[uint32]*entry),
		cleanList:   list.New(),
		dirtyList:   list.New(),
		workCh:      make(chan uint32, 1024),
		stopCh:      make(chan struct{}),
		lastReadIdx: -1,
	}
	s.cond = sync.NewCond(&s.mu)

	if cfg.RecoverDirtyBlocks && j.IsEnabled() {
		recovered, err := j.Recover()
		if err != nil {
			return nil, &s3store.Error{Kind: s3store.KindIO, Op: "blockcache.New", Err: err}
		}
		for _, rec := range recovered {
			e := &entry{idx: rec.Index, state: stateDirty, data: rec.Data, hash: rec.Hash, dirtySince: time.Unix(0, rec.DirtySince)}
			s.entries[rec.Index] = e
			s.pushDirty(e)
			s.scheduleFlush(e)
		}
		logger.Info("blockcache: recovered dirty blocks from journal", "count", len(recovered))
	}

	for i := 0; i < cfg.NumThreads; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	return s, nil
}

func (s *Store) worker() {
	defer s.wg.Done()
	for {
		select {
		case idx, ok := <-s.workCh:
			if !ok {
				return
			}
			s.flushOne(idx)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) scheduleFlush(e *entry) {
	delay := s.cfg.WriteDelay
	time.AfterFunc(delay, func() {
		select {
		case s.workCh <- e.idx:
		case <-s.stopCh:
		}
	})
}

// flushOne propagates a single dirty entry downstream, handling the
// WRITING -> WRITING2 -> DIRTY supersede cycle.
func (s *Store) flushOne(idx uint32) {
	s.mu.Lock()
	e, ok := s.entries[idx]
	if !ok || e.state != stateDirty {
		s.mu.Unlock()
		return
	}
	e.state = stateWriting
	data := e.data
	s.mu.Unlock()

	hash, err := s.next.Write(context.Background(), idx, data)

	s.mu.Lock()
	if err != nil {
		s.logger.Warn("blockcache: downstream write failed, retrying", "index", idx, "error", err)
		e.state = stateDirty
		s.mu.Unlock()
		time.AfterFunc(s.cfg.WriteDelay, func() {
			select {
			case s.workCh <- idx:
			case <-s.stopCh:
			}
		})
		return
	}

	if e.state == stateWriting2 {
		e.state = stateDirty
		e.data = e.pending
		e.pending = nil
		e.dirtySince = s.clock.Now()
		s.mu.Unlock()
		_ = s.journal.AppendDirty(idx, e.data, hashOf(e.data), e.dirtySince.UnixNano())
		s.scheduleFlush(e)
		return
	}

	e.hash = hash
	e.state = stateClean
	s.removeDirty(e)
	s.pushClean(e)
	s.cond.Broadcast()
	s.mu.Unlock()
	_ = s.journal.Clear(idx)
}

func (s *Store) pushDirty(e *entry) {
	e.dirtyElem = s.dirtyList.PushBack(e)
	recordDirtyCount(s.metrics, s.dirtyList.Len())
}

func (s *Store) removeDirty(e *entry) {
	if e.dirtyElem != nil {
		s.dirtyList.Remove(e.dirtyElem)
		e.dirtyElem = nil
		recordDirtyCount(s.metrics, s.dirtyList.Len())
	}
}

func (s *Store) pushClean(e *entry) {
	s.evictIfNeededLocked()
	e.cleanElem = s.cleanList.PushFront(e)
}

func (s *Store) touchClean(e *entry) {
	if e.cleanElem != nil {
		s.cleanList.MoveToFront(e.cleanElem)
	}
}

func (s *Store) removeClean(e *entry) {
	if e.cleanElem != nil {
		s.cleanList.Remove(e.cleanElem)
		e.cleanElem = nil
	}
}

// evictIfNeededLocked evicts the least-recently-used CLEAN entry if the
// cache is at capacity. Must be called with s.mu held.
func (s *Store) evictIfNeededLocked() {
	if len(s.entries) < s.cfg.CacheSize {
		return
	}
	back := s.cleanList.Back()
	if back == nil {
		return // no CLEAN entry to evict: the insert proceeds without blocking and the cache grows past CacheSize
	}
	victim := back.Value.(*entry)
	s.cleanList.Remove(back)
	delete(s.entries, victim.idx)
	recordEviction(s.metrics)
}

func copyBuf(buf []byte) []byte {
	if buf == nil {
		return nil
	}
	return append([]byte(nil), buf...)
}

func hashOf(buf []byte) s3store.Hash {
	if buf == nil {
		return s3store.Hash{}
	}
	return s3store.SumHash(buf)
}

// Read implements s3store.Store.
func (s *Store) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (int, error) {
	s.mu.Lock()
	e, ok := s.entries[idx]
	if ok {
		for e.state == stateReading || e.state == stateReading2 {
			s.cond.Wait()
		}
		if expectHash != nil && !s.cfg.NoVerify && !e.hash.IsZero() && e.hash == *expectHash {
			s.mu.Unlock()
			return 0, s3store.ErrNotModified
		}
		data := e.data
		if e.state == stateWriting2 {
			data = e.pending
		}
		if e.cleanElem != nil {
			s.touchClean(e)
		}
		s.mu.Unlock()
		recordHit(s.metrics)
		if data == nil {
			// a nil payload is an all-zero block
			clear(buf)
			s.trackSequential(idx)
			return len(buf), nil
		}
		n := copy(buf, data)
		s.trackSequential(idx)
		return n, nil
	}

	recordMiss(s.metrics)
	e = &entry{idx: idx, state: stateReading}
	s.entries[idx] = e
	s.mu.Unlock()

	key := fmt.Sprintf("%d", idx)
	type fetchResult struct {
		data []byte
		err  error
	}
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		tmp := make([]byte, s.geo.BlockSize)
		n, ferr := s.next.Read(ctx, idx, tmp, expectHash)
		if ferr != nil {
			return fetchResult{err: ferr}, nil
		}
		return fetchResult{data: tmp[:n]}, nil
	})
	if err != nil {
		s.mu.Lock()
		delete(s.entries, idx)
		s.cond.Broadcast()
		s.mu.Unlock()
		return 0, err
	}
	fr := v.(fetchResult)

	s.mu.Lock()
	if fr.err != nil {
		delete(s.entries, idx)
		s.cond.Broadcast()
		s.mu.Unlock()
		return 0, fr.err
	}

	if e.state == stateReading2 {
		e.state = stateDirty
		e.data = e.pending
		e.pending = nil
		e.dirtySince = s.clock.Now()
		s.pushDirty(e)
		s.cond.Broadcast()
		result := copyBuf(e.data)
		s.mu.Unlock()
		_ = s.journal.AppendDirty(idx, result, hashOf(result), e.dirtySince.UnixNano())
		s.scheduleFlush(e)
		n := copy(buf, result)
		return n, nil
	}

	e.state = stateClean
	e.data = fr.data
	e.hash = s3store.SumHash(fr.data)
	s.pushClean(e)
	s.cond.Broadcast()
	result := fr.data
	s.mu.Unlock()

	n := copy(buf, result)
	s.trackSequential(idx)
	return n, nil
}

// trackSequential updates the sequential-access heuristic and, once the
// trigger count is reached, fires best-effort read-ahead for the next
// ReadAhead indices.
func (s *Store) trackSequential(idx uint32) {
	if s.cfg.ReadAhead <= 0 || s.cfg.ReadAheadTrigger <= 0 {
		return
	}
	s.mu.Lock()
	if int64(idx) == s.lastReadIdx+1 {
		s.seqCount++
	} else {
		s.seqCount = 1
	}
	s.lastReadIdx = int64(idx)
	trigger := s.seqCount >= s.cfg.ReadAheadTrigger
	s.mu.Unlock()

	if !trigger {
		return
	}
	for k := 1; k <= s.cfg.ReadAhead; k++ {
		next := idx + uint32(k)
		if next >= s.geo.NumBlocks {
			break
		}
		s.mu.Lock()
		_, cached := s.entries[next]
		s.mu.Unlock()
		if cached {
			continue
		}
		go func(i uint32) {
			scratch := make([]byte, s.geo.BlockSize)
			_, _ = s.Read(context.Background(), i, scratch, nil)
		}(next)
	}
}

// Write implements s3store.Store.
func (s *Store) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	if s.geo.ReadOnly {
		return s3store.Hash{}, s3store.ErrReadOnly
	}
	s.mu.Lock()
	closed := s.shuttingDown
	s.mu.Unlock()
	if closed {
		return s3store.Hash{}, s3store.ErrShutdown
	}

	if s.cfg.Synchronous {
		hash, err := s.next.Write(ctx, idx, buf)
		if err != nil {
			return s3store.Hash{}, err
		}
		s.mu.Lock()
		e, ok := s.entries[idx]
		if !ok {
			e = &entry{idx: idx}
			s.entries[idx] = e
		} else {
			s.removeDirty(e)
			s.removeClean(e)
		}
		e.state = stateClean
		e.data = copyBuf(buf)
		e.hash = hash
		s.pushClean(e)
		s.cond.Broadcast()
		s.mu.Unlock()
		return hash, nil
	}

	now := s.clock.Now()
	hash := hashOf(buf)

	s.mu.Lock()
	for {
		e, ok := s.entries[idx]
		if !ok {
			if s.dirtyList.Len() >= s.cfg.MaxDirty && s.cfg.MaxDirty > 0 {
				s.cond.Wait()
				continue
			}
			e = &entry{idx: idx, state: stateDirty, data: copyBuf(buf), dirtySince: now}
			s.entries[idx] = e
			s.pushDirty(e)
			s.mu.Unlock()
			_ = s.journal.AppendDirty(idx, copyBuf(buf), hash, now.UnixNano())
			s.scheduleFlush(e)
			return hash, nil
		}

		switch e.state {
		case stateClean:
			s.removeClean(e)
			e.state = stateDirty
			e.data = copyBuf(buf)
			e.dirtySince = now
			s.pushDirty(e)
			s.mu.Unlock()
			_ = s.journal.AppendDirty(idx, copyBuf(buf), hash, now.UnixNano())
			s.scheduleFlush(e)
			return hash, nil
		case stateDirty:
			e.data = copyBuf(buf)
			s.mu.Unlock()
			_ = s.journal.AppendDirty(idx, copyBuf(buf), hash, now.UnixNano())
			return hash, nil
		case stateWriting:
			e.state = stateWriting2
			e.pending = copyBuf(buf)
			s.mu.Unlock()
			return hash, nil
		case stateWriting2:
			e.pending = copyBuf(buf)
			s.mu.Unlock()
			return hash, nil
		case stateReading, stateReading2:
			e.state = stateReading2
			e.pending = copyBuf(buf)
			s.mu.Unlock()
			return hash, nil
		}
		s.mu.Unlock()
		return hash, nil
	}
}

func (s *Store) ListBlocks(ctx context.Context, fn func(idx uint32) error) error {
	return s.next.ListBlocks(ctx, fn)
}

// Flush implements s3store.Store: forces every currently-DIRTY entry to
// the work queue immediately rather than waiting for its write_delay
// timer, then blocks until every entry that was dirty at the time of the
// call has been written downstream. Entries dirtied after the call are
// not waited for.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.dirtyList.Len() == 0 {
		s.mu.Unlock()
		return s.next.Flush(ctx)
	}
	var idxs []uint32
	var pending []*entry
	for el := s.dirtyList.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		pending = append(pending, e)
		if e.state == stateDirty {
			idxs = append(idxs, e.idx)
		}
	}
	s.mu.Unlock()

	for _, idx := range idxs {
		select {
		case s.workCh <- idx:
		case <-s.stopCh:
			return s3store.ErrShutdown
		}
	}

	s.mu.Lock()
	for _, e := range pending {
		for e.dirtyElem != nil {
			s.cond.Wait()
		}
	}
	s.mu.Unlock()

	return s.next.Flush(ctx)
}

func (s *Store) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	return s.next.SurveyNonZero(ctx, fn)
}

func (s *Store) Shutdown(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	_ = s.journal.Close()
	return s.next.Shutdown(ctx)
}

func (s *Store) Destroy(ctx context.Context) error {
	return s.next.Destroy(ctx)
}

var _ s3store.Store = (*Store)(nil)
