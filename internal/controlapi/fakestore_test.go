package controlapi

import (
	"context"
	"sync"

	s3store "github.com/marmos91/s3block/store"
)

// fakeStore is a minimal in-memory s3store.Store used to exercise the admin
// API's routes without assembling a real stack.
type fakeStore struct {
	mu       sync.Mutex
	blocks   map[uint32][]byte
	nonZero  map[uint32]struct{}
	listErr  error
	flushErr error
	surveyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocks:  make(map[uint32][]byte),
		nonZero: make(map[uint32]struct{}),
	}
}

func (f *fakeStore) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[idx]
	if !ok {
		return len(buf), nil
	}
	copy(buf, b)
	return len(buf), nil
}

func (f *fakeStore) Write(ctx context.Context, idx uint32, buf []byte) (s3store.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[idx] = append([]byte(nil), buf...)
	if buf != nil {
		f.nonZero[idx] = struct{}{}
	} else {
		delete(f.nonZero, idx)
	}
	return s3store.SumHash(buf), nil
}

func (f *fakeStore) ListBlocks(ctx context.Context, fn func(idx uint32) error) error {
	if f.listErr != nil {
		return f.listErr
	}
	f.mu.Lock()
	indices := make([]uint32, 0, len(f.blocks))
	for idx := range f.blocks {
		indices = append(indices, idx)
	}
	f.mu.Unlock()
	for _, idx := range indices {
		if err := fn(idx); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Flush(ctx context.Context) error {
	return f.flushErr
}

func (f *fakeStore) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	if f.surveyErr != nil {
		return f.surveyErr
	}
	f.mu.Lock()
	indices := make([]uint32, 0, len(f.nonZero))
	for idx := range f.nonZero {
		indices = append(indices, idx)
	}
	f.mu.Unlock()
	for _, idx := range indices {
		if err := fn(idx); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) Shutdown(ctx context.Context) error { return nil }
func (f *fakeStore) Destroy(ctx context.Context) error  { return nil }
