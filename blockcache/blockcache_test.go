package blockcache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/s3block/blockcache/journal"
	s3store "github.com/marmos91/s3block/store"
)

type recordingStore struct {
	mu      sync.Mutex
	objects map[uint32][]byte
	puts    int32
	gets    int32
}

func newRecordingStore() *recordingStore {
	return &recordingStore{objects: make(map[uint32][]byte)}
}

func (r *recordingStore) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (int, error) {
	atomic.AddInt32(&r.gets, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.objects[idx]
	if !ok {
		return 0, s3store.ErrNotFound
	}
	return copy(buf, data), nil
}

func (r *recordingStore) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	atomic.AddInt32(&r.puts, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if buf == nil {
		delete(r.objects, idx)
		return s3store.Hash{}, nil
	}
	cp := append([]byte(nil), buf...)
	r.objects[idx] = cp
	return s3store.SumHash(cp), nil
}

func (r *recordingStore) ListBlocks(ctx context.Context, fn func(idx uint32) error) error { return nil }
func (r *recordingStore) Flush(ctx context.Context) error                                { return nil }
func (r *recordingStore) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	return nil
}
func (r *recordingStore) Shutdown(ctx context.Context) error { return nil }
func (r *recordingStore) Destroy(ctx context.Context) error  { return nil }

var _ s3store.Store = (*recordingStore)(nil)

func testGeo() s3store.Config {
	return s3store.Config{BlockSize: 4096, NumBlocks: 1024}
}

// gatedStore wraps recordingStore but blocks the first Write call until
// release is closed, letting a test hold a PUT in flight deliberately.
type gatedStore struct {
	*recordingStore
	entered  chan struct{}
	release  chan struct{}
	enterOne sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		recordingStore: newRecordingStore(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (g *gatedStore) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	g.enterOne.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.recordingStore.Write(ctx, idx, buf)
}

// TestBlockCache_WriteThenImmediateRead is scenario S1 from spec.md §8.
func TestBlockCache_WriteThenImmediateRead(t *testing.T) {
	ctx := context.Background()
	next := newRecordingStore()
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.WriteDelay = 100 * time.Millisecond

	bc, err := New(ctx, next, testGeo(), cfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bc.Shutdown(ctx)

	payload := bytes.Repeat([]byte{0xAB}, 4096)
	if _, err := bc.Write(ctx, 5, payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := bc.Read(ctx, 5, buf, nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("read did not return the written payload")
	}
	if atomic.LoadInt32(&next.gets) != 0 {
		t.Fatalf("expected zero downstream GETs, got %d", next.gets)
	}

	time.Sleep(cfg.WriteDelay + 150*time.Millisecond)
	if got := atomic.LoadInt32(&next.puts); got != 1 {
		t.Fatalf("expected exactly one downstream PUT after write_delay, got %d", got)
	}
}

// TestBlockCache_CoalescesWritesWithinDelay is scenario S2 from spec.md §8.
func TestBlockCache_CoalescesWritesWithinDelay(t *testing.T) {
	ctx := context.Background()
	next := newRecordingStore()
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.WriteDelay = 100 * time.Millisecond

	bc, err := New(ctx, next, testGeo(), cfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bc.Shutdown(ctx)

	p1 := bytes.Repeat([]byte{0x1}, 4096)
	p2 := bytes.Repeat([]byte{0x2}, 4096)

	if _, err := bc.Write(ctx, 5, p1); err != nil {
		t.Fatalf("Write(p1) failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := bc.Write(ctx, 5, p2); err != nil {
		t.Fatalf("Write(p2) failed: %v", err)
	}

	time.Sleep(cfg.WriteDelay + 150*time.Millisecond)

	buf := make([]byte, 4096)
	if _, err := bc.Read(ctx, 5, buf, nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf, p2) {
		t.Fatalf("expected final value to be p2")
	}
	if got := atomic.LoadInt32(&next.puts); got != 1 {
		t.Fatalf("expected exactly one coalesced downstream PUT, got %d", got)
	}
}

// TestBlockCache_MaxDirtyBlocksNewWrites is scenario S5 from spec.md §8.
func TestBlockCache_MaxDirtyBlocksNewWrites(t *testing.T) {
	ctx := context.Background()
	next := newRecordingStore()
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.MaxDirty = 4
	cfg.WriteDelay = time.Hour // never drains on its own within the test

	bc, err := New(ctx, next, testGeo(), cfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bc.Shutdown(ctx)

	payload := bytes.Repeat([]byte{0x3}, 4096)
	for i := uint32(0); i < uint32(cfg.MaxDirty); i++ {
		if _, err := bc.Write(ctx, i, payload); err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		if _, err := bc.Write(ctx, uint32(cfg.MaxDirty), payload); err != nil {
			t.Errorf("blocked Write failed: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("write to a new index should have blocked while max_dirty is reached")
	case <-time.After(100 * time.Millisecond):
		// expected: still blocked
	}

	// force a drain, which should unblock the waiting writer
	if err := bc.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write did not unblock after flush drained the dirty set")
	}
}

func TestBlockCache_ReadMissFetchesDownstream(t *testing.T) {
	ctx := context.Background()
	next := newRecordingStore()
	payload := bytes.Repeat([]byte{0x7}, 4096)
	next.objects[9] = payload

	bc, err := New(ctx, next, testGeo(), DefaultConfig(), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bc.Shutdown(ctx)

	buf := make([]byte, 4096)
	n, err := bc.Read(ctx, 9, buf, nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("expected downstream payload on cache miss")
	}
}

// TestBlockCache_ReadDuringSupersedingWriteSeesNewestPayload exercises the
// WRITING2 state: a write lands while an earlier PUT for the same index is
// still in flight downstream, and a read racing that PUT must return the
// superseding payload, not the one currently mid-flight.
func TestBlockCache_ReadDuringSupersedingWriteSeesNewestPayload(t *testing.T) {
	ctx := context.Background()
	next := newGatedStore()
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.WriteDelay = 10 * time.Millisecond

	bc, err := New(ctx, next, testGeo(), cfg, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() {
		close(next.release)
		bc.Shutdown(ctx)
	}()

	p1 := bytes.Repeat([]byte{0x1}, 4096)
	p2 := bytes.Repeat([]byte{0x2}, 4096)

	if _, err := bc.Write(ctx, 5, p1); err != nil {
		t.Fatalf("Write(p1) failed: %v", err)
	}

	select {
	case <-next.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("downstream PUT for p1 never started")
	}

	// The first PUT is now blocked in flight; a second write for the same
	// index must move the entry to WRITING2 rather than overwrite p1.
	if _, err := bc.Write(ctx, 5, p2); err != nil {
		t.Fatalf("Write(p2) failed: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := bc.Read(ctx, 5, buf, nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(buf[:n], p2) {
		t.Fatalf("read during in-flight PUT returned stale payload instead of the superseding write")
	}
}

// TestBlockCache_RecoveredDirtyBlockFlushesActualPayload proves that a
// dirty marker recovered from the journal carries the real block content
// downstream on flush rather than an empty buffer, which Store.Write
// would otherwise interpret as an all-zero write and erase the block.
func TestBlockCache_RecoveredDirtyBlockFlushesActualPayload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	j, err := journal.Open(dir)
	if err != nil {
		t.Fatalf("journal.Open failed: %v", err)
	}

	payload := bytes.Repeat([]byte{0x7}, 4096)
	if err := j.AppendDirty(5, payload, s3store.SumHash(payload), 123); err != nil {
		t.Fatalf("AppendDirty failed: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	j, err = journal.Open(dir)
	if err != nil {
		t.Fatalf("re-opening journal failed: %v", err)
	}

	next := newRecordingStore()
	cfg := DefaultConfig()
	cfg.NumThreads = 1
	cfg.WriteDelay = 10 * time.Millisecond
	cfg.RecoverDirtyBlocks = true

	bc, err := New(ctx, next, testGeo(), cfg, nil, nil, j, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bc.Shutdown(ctx)

	deadline := time.After(2 * time.Second)
	for {
		next.mu.Lock()
		data, ok := next.objects[5]
		next.mu.Unlock()
		if ok {
			if !bytes.Equal(data, payload) {
				t.Fatalf("recovered flush wrote %v, want the recovered payload", data)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("recovered dirty block was never flushed downstream")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
