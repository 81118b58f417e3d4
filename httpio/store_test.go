package httpio

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	s3store "github.com/marmos91/s3block/store"
)

// fakeAPIError implements smithy.APIError for exercising the retry/not-found
// classification helpers without a real endpoint.
type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string            { return e.code }
func (e fakeAPIError) ErrorCode() string        { return e.code }
func (e fakeAPIError) ErrorMessage() string      { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

var _ smithy.APIError = fakeAPIError{}

// fakeS3 is an in-memory s3API used by every test in this file.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	failNext map[string]error
	gets     int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		failNext: make(map[string]error),
	}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	key := aws.ToString(in.Key)
	if err := f.takeFailure(key); err != nil {
		return nil, err
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, fakeAPIError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body)), Metadata: f.metadata[key]}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if err := f.takeFailure(key); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = body
	f.metadata[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; !ok {
		return nil, fakeAPIError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{Metadata: f.metadata[key]}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := aws.ToString(in.Prefix)
	var contents []types.Object
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			k := key
			contents = append(contents, types.Object{Key: &k})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

// takeFailure pops and returns any one-shot failure queued for key,
// simulating a single transient error before success (spec.md §8's
// retry-then-succeed property).
func (f *fakeS3) takeFailure(key string) error {
	if err, ok := f.failNext[key]; ok {
		delete(f.failNext, key)
		return err
	}
	return nil
}

func testOpen(t *testing.T, client *fakeS3, cfg Config, geo s3store.Config) *Store {
	t.Helper()
	s := &Store{cfg: cfg, geo: geo, client: client, clock: s3store.SystemClock{}, logger: s3store.NopLogger{}}
	cfg.Bucket = "test-bucket"
	s.cfg = cfg
	if err := s.loadOrCreateMetadata(context.Background()); err != nil {
		t.Fatalf("loadOrCreateMetadata: %v", err)
	}
	if cfg.Encrypt {
		s.km = deriveKeys(cfg.Password, s.salt, cfg.KeyLength)
	}
	return s
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x42}, 4096)
	if _, err := s.Write(context.Background(), 3, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := s.Read(context.Background(), 3, buf, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4096 || !bytes.Equal(buf, payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestStore_ReadMissingReturnsNotFound(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	buf := make([]byte, 4096)
	_, err := s.Read(context.Background(), 7, buf, nil)
	if !s3store.IsKind(err, s3store.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestStore_EncryptedRoundTripAndIntegrityFailure(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	cfg.Encrypt = true
	cfg.Password = "correct horse battery staple"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x7a}, 4096)
	if _, err := s.Write(context.Background(), 1, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 4096)
	if _, err := s.Read(context.Background(), 1, buf, nil); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("decrypted payload mismatch")
	}

	client.mu.Lock()
	key := s.blockKey(1)
	corrupt := append([]byte(nil), client.objects[key]...)
	corrupt[len(corrupt)-1] ^= 0xff
	client.objects[key] = corrupt
	client.mu.Unlock()

	_, err := s.Read(context.Background(), 1, buf, nil)
	if !s3store.IsKind(err, s3store.KindIntegrity) {
		t.Fatalf("expected KindIntegrity after corrupting ciphertext, got %v", err)
	}
}

// TestStore_PlainCorruptionDetected is scenario S6 from spec.md §8 for the
// default, unencrypted configuration: a flipped byte in the stored object
// must surface as KindIntegrity on read, not be silently returned.
func TestStore_PlainCorruptionDetected(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x9}, 4096)
	if _, err := s.Write(context.Background(), 9, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.mu.Lock()
	key := s.blockKey(9)
	corrupt := append([]byte(nil), client.objects[key]...)
	corrupt[len(corrupt)-1] ^= 0xff
	client.objects[key] = corrupt
	client.mu.Unlock()

	buf := make([]byte, 4096)
	_, err := s.Read(context.Background(), 9, buf, nil)
	if !s3store.IsKind(err, s3store.KindIntegrity) {
		t.Fatalf("expected KindIntegrity after corrupting an unencrypted object, got %v", err)
	}
}

// TestStore_NoVerifySkipsIntegrityCheck confirms the no_verify knob actually
// disables the content-hash check instead of being dead configuration.
func TestStore_NoVerifySkipsIntegrityCheck(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	cfg.NoVerify = true
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x5}, 4096)
	if _, err := s.Write(context.Background(), 2, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.mu.Lock()
	key := s.blockKey(2)
	corrupt := append([]byte(nil), client.objects[key]...)
	corrupt[len(corrupt)-1] ^= 0xff
	client.objects[key] = corrupt
	client.mu.Unlock()

	buf := make([]byte, 4096)
	if _, err := s.Read(context.Background(), 2, buf, nil); err != nil {
		t.Fatalf("expected no_verify to suppress the integrity check, got %v", err)
	}
}

// TestStore_ReadConditionalShortCircuitsOnMatchingHash exercises the
// HeadObject-based conditional path: when expectHash matches the persisted
// content-hash metadata, Read must return ErrNotModified without ever
// calling GetObject.
func TestStore_ReadConditionalShortCircuitsOnMatchingHash(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x3}, 4096)
	hash, err := s.Write(context.Background(), 4, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.mu.Lock()
	getsBefore := client.gets
	client.mu.Unlock()

	buf := make([]byte, 4096)
	_, err = s.Read(context.Background(), 4, buf, &hash)
	if err != s3store.ErrNotModified {
		t.Fatalf("expected ErrNotModified from the HeadObject short-circuit, got %v", err)
	}

	client.mu.Lock()
	getsAfter := client.gets
	client.mu.Unlock()
	if getsAfter != getsBefore {
		t.Fatalf("expected the conditional read to skip GetObject entirely, got %d additional calls", getsAfter-getsBefore)
	}
}

func TestStore_CompressionRoundTrip(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	cfg.Compress = true
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	payload := bytes.Repeat([]byte{0x01}, 4096)
	if _, err := s.Write(context.Background(), 2, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	client.mu.Lock()
	stored := len(client.objects[s.blockKey(2)])
	client.mu.Unlock()
	if stored >= len(payload) {
		t.Fatalf("expected compressed object smaller than plaintext, got %d bytes", stored)
	}

	buf := make([]byte, 4096)
	if _, err := s.Read(context.Background(), 2, buf, nil); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("decompressed payload mismatch")
	}
}

func TestStore_WriteRetriesTransientFailure(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	cfg.MaxRetryPause = 10 * time.Millisecond
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	key := s.blockKey(5)
	client.mu.Lock()
	client.failNext[key] = fakeAPIError{code: "ServiceUnavailable"}
	client.mu.Unlock()

	payload := bytes.Repeat([]byte{0x9}, 4096)
	if _, err := s.Write(context.Background(), 5, payload); err != nil {
		t.Fatalf("Write should have retried past the transient failure: %v", err)
	}
}

func TestStore_WriteNonRetryableFailsImmediately(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	key := s.blockKey(9)
	client.mu.Lock()
	client.failNext[key] = fakeAPIError{code: "AccessDenied"}
	client.mu.Unlock()

	_, err := s.Write(context.Background(), 9, bytes.Repeat([]byte{0x1}, 4096))
	if err == nil {
		t.Fatalf("expected AccessDenied to fail without exhausting retries")
	}
}

func TestStore_WriteNilDeletesObject(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	if _, err := s.Write(context.Background(), 4, bytes.Repeat([]byte{0x5}, 4096)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Write(context.Background(), 4, nil); err != nil {
		t.Fatalf("Write(nil): %v", err)
	}

	buf := make([]byte, 4096)
	_, err := s.Read(context.Background(), 4, buf, nil)
	if !s3store.IsKind(err, s3store.KindNotFound) {
		t.Fatalf("expected KindNotFound after zero-write, got %v", err)
	}
}

func TestStore_ListBlocksSkipsMetadataObject(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	for _, idx := range []uint32{0, 2, 5} {
		if _, err := s.Write(context.Background(), idx, bytes.Repeat([]byte{byte(idx)}, 4096)); err != nil {
			t.Fatalf("Write(%d): %v", idx, err)
		}
	}

	seen := map[uint32]bool{}
	if err := s.ListBlocks(context.Background(), func(idx uint32) error {
		seen[idx] = true
		return nil
	}); err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	if len(seen) != 3 || !seen[0] || !seen[2] || !seen[5] {
		t.Fatalf("unexpected set of listed blocks: %v", seen)
	}
}

func TestStore_DestroyRemovesEverything(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	if _, err := s.Write(context.Background(), 0, bytes.Repeat([]byte{0xa}, 4096)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	client.mu.Lock()
	remaining := len(client.objects)
	client.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected Destroy to remove all objects, %d remain", remaining)
	}
}

func TestStore_ShutdownRejectsFurtherOps(t *testing.T) {
	client := newFakeS3()
	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := testOpen(t, client, cfg, geo)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_, err := s.Write(context.Background(), 0, bytes.Repeat([]byte{0x1}, 4096))
	if !s3store.IsKind(err, s3store.KindShutdown) {
		t.Fatalf("expected KindShutdown after Shutdown, got %v", err)
	}
}

func TestMetadataObjectRejectsNonEmptyStoreWithoutMetadata(t *testing.T) {
	client := newFakeS3()
	client.objects["blocks/0"] = []byte("stray block with no metadata object")

	cfg := DefaultConfig()
	cfg.Prefix = "blocks/"
	cfg.Bucket = "test-bucket"
	geo := s3store.Config{BlockSize: 4096, NumBlocks: 16}
	s := &Store{cfg: cfg, geo: geo, client: client, clock: s3store.SystemClock{}, logger: s3store.NopLogger{}}

	err := s.loadOrCreateMetadata(context.Background())
	if !s3store.IsKind(err, s3store.KindConfig) {
		t.Fatalf("expected KindConfig for missing metadata over a non-empty store, got %v", err)
	}
}
