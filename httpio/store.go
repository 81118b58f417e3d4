package httpio

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	s3store "github.com/marmos91/s3block/store"
)

// contentHashMetaKey is the S3 object metadata key (stored by AWS as
// x-amz-meta-content-hash) carrying the MD5 of the block's plaintext, set
// on every Write and checked on every Read so silent corruption of the
// stored object is caught regardless of whether encryption is enabled.
const contentHashMetaKey = "content-hash"

func parseContentHash(s string) (s3store.Hash, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(s3store.Hash{}) {
		return s3store.Hash{}, false
	}
	var h s3store.Hash
	copy(h[:], b)
	return h, true
}

// s3API is the slice of *s3.Client this package exercises: a narrow
// interface lets tests substitute a fake without a real endpoint.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is the HTTP I/O layer: the bottom of the stack, talking directly to
// an S3-compatible object store. One object per block, keyed
// {prefix}{index in hex, zero-padded to geo.HexWidth()}.
type Store struct {
	cfg    Config
	geo    s3store.Config
	client s3API

	salt []byte
	km   keyMaterial

	clock   s3store.Clock
	logger  s3store.Logger
	metrics Metrics

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewS3ClientFromConfig builds an *s3.Client from the given httpio.Config.
func NewS3ClientFromConfig(ctx context.Context, cfg Config) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("httpio: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// Options bundles the optional collaborators accepted by Open.
type Options struct {
	Clock   s3store.Clock
	Logger  s3store.Logger
	Metrics Metrics
}

// Open verifies bucket access, reads or creates the reserved metadata
// object (spec.md §6), and returns a ready Store. geo.BlockSize/NumBlocks
// in cfg are authoritative only when no metadata object yet exists;
// thereafter the persisted values win, matching S3's role as the single
// source of truth for store geometry.
func Open(ctx context.Context, client *s3.Client, bucket string, geo s3store.Config, cfg Config, opts Options) (*Store, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	cfg.Bucket = bucket

	s := &Store{
		cfg:     cfg,
		geo:     geo,
		client:  client,
		clock:   opts.Clock,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.clock == nil {
		s.clock = s3store.SystemClock{}
	}
	if s.logger == nil {
		s.logger = s3store.NopLogger{}
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, &s3store.Error{Kind: s3store.KindIO, Op: "httpio.Open", Err: fmt.Errorf("access bucket %q: %w", bucket, err)}
	}

	if err := s.loadOrCreateMetadata(ctx); err != nil {
		return nil, err
	}
	if cfg.Encrypt {
		s.km = deriveKeys(cfg.Password, s.salt, cfg.KeyLength)
	}
	return s, nil
}

func (s *Store) blockKey(idx uint32) string {
	return fmt.Sprintf("%s%0*x", s.cfg.Prefix, s.geo.HexWidth(), idx)
}

func (s *Store) checkShutdown() error {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.shutdown {
		return s3store.ErrShutdown
	}
	return nil
}

// Read implements store.Store. If expectHash is non-nil, a cheap HeadObject
// checks the persisted content-hash metadata before paying for a full GET:
// a match means the caller already has the current content and Read
// returns ErrNotModified without downloading the body. Every download, not
// only conditional ones, verifies the persisted content-hash against the
// decoded plaintext so a corrupted object is caught regardless of whether
// the caller asked for a conditional fetch or whether encryption is
// enabled (the envelope's own compression/encryption framing does not by
// itself guard against an S3-side bit flip of an unencrypted block).
func (s *Store) Read(ctx context.Context, idx uint32, buf []byte, expectHash *s3store.Hash) (n int, err error) {
	if err := s.checkShutdown(); err != nil {
		return 0, err
	}
	start := s.clock.Now()
	defer func() { observeOperation(s.metrics, "read", start, err) }()

	if expectHash != nil {
		head, herr := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.blockKey(idx)),
		})
		if herr != nil {
			if isNotFoundError(herr) {
				return 0, s3store.ErrNotFound
			}
			return 0, herr
		}
		if persisted, ok := parseContentHash(head.Metadata[contentHashMetaKey]); ok && persisted == *expectHash {
			return 0, s3store.ErrNotModified
		}
	}

	var envelope []byte
	var persistedHash string
	rerr := withRetry(ctx, s.cfg.MaxRetries, s.cfg.MaxRetryPause, func() error {
		out, gerr := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(s.blockKey(idx)),
		})
		if gerr != nil {
			return gerr
		}
		defer out.Body.Close()
		body, rerr := io.ReadAll(out.Body)
		if rerr != nil {
			return rerr
		}
		envelope = body
		persistedHash = out.Metadata[contentHashMetaKey]
		return nil
	})
	if rerr != nil {
		if isNotFoundError(rerr) {
			return 0, s3store.ErrNotFound
		}
		return 0, rerr
	}

	plaintext, perr := s.decode(idx, envelope)
	if perr != nil {
		return 0, perr
	}
	actual := s3store.SumHash(plaintext)
	if !s.cfg.NoVerify {
		if want, ok := parseContentHash(persistedHash); ok && want != actual {
			return 0, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.Read", Err: fmt.Errorf("content hash mismatch: object metadata says %s, decoded payload hashes to %s", want, actual)}
		}
	}
	if expectHash != nil && actual == *expectHash {
		return 0, s3store.ErrNotModified
	}
	if len(plaintext) != len(buf) {
		return 0, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.Read", Err: fmt.Errorf("decoded length %d != block size %d", len(plaintext), len(buf))}
	}
	n = copy(buf, plaintext)
	recordBytes(s.metrics, "read", n)
	return n, nil
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, idx uint32, buf []byte) (hash s3store.Hash, err error) {
	if s.geo.ReadOnly {
		return s3store.Hash{}, s3store.ErrReadOnly
	}
	if err := s.checkShutdown(); err != nil {
		return s3store.Hash{}, err
	}
	start := s.clock.Now()
	defer func() { observeOperation(s.metrics, "write", start, err) }()

	if buf == nil {
		rerr := withRetry(ctx, s.cfg.MaxRetries, s.cfg.MaxRetryPause, func() error {
			_, derr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.Bucket),
				Key:    aws.String(s.blockKey(idx)),
			})
			if derr != nil && isNotFoundError(derr) {
				return nil
			}
			return derr
		})
		if rerr != nil {
			return s3store.Hash{}, rerr
		}
		return s3store.Hash{}, nil
	}

	hash = s3store.SumHash(buf)
	envelope, eerr := s.encode(idx, buf)
	if eerr != nil {
		return s3store.Hash{}, eerr
	}

	rerr := withRetry(ctx, s.cfg.MaxRetries, s.cfg.MaxRetryPause, func() error {
		_, perr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:   aws.String(s.cfg.Bucket),
			Key:      aws.String(s.blockKey(idx)),
			Body:     bytesReader(envelope),
			Metadata: map[string]string{contentHashMetaKey: hash.String()},
		})
		return perr
	})
	if rerr != nil {
		return s3store.Hash{}, rerr
	}
	recordBytes(s.metrics, "write", len(buf))
	return hash, nil
}

// encode compresses (if configured and worthwhile) and encrypts (if
// configured) plaintext, returning the bytes stored as the object body.
// Envelope layout: 1-byte flags, 4-byte big-endian original length,
// payload.
func (s *Store) encode(idx uint32, plaintext []byte) ([]byte, error) {
	payload := plaintext
	var flags byte
	originalLen := len(plaintext)

	if s.cfg.Compress && originalLen >= compressThreshold {
		compressed, err := deflate(plaintext, s.cfg.CompressLevel)
		if err != nil {
			return nil, &s3store.Error{Kind: s3store.KindIO, Op: "httpio.encode", Err: err}
		}
		if len(compressed) < originalLen {
			payload = compressed
			flags |= flagCompressed
		}
	}

	if s.cfg.Encrypt {
		enc, err := encryptBlock(s.km, idx, payload)
		if err != nil {
			return nil, &s3store.Error{Kind: s3store.KindIO, Op: "httpio.encode", Err: err}
		}
		payload = enc
		flags |= flagEncrypted
	}

	out := make([]byte, 0, 5+len(payload))
	out = append(out, flags)
	out = appendUint32(out, uint32(originalLen))
	out = append(out, payload...)
	return out, nil
}

func (s *Store) decode(idx uint32, envelope []byte) ([]byte, error) {
	if len(envelope) < 5 {
		return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decode", Err: fmt.Errorf("envelope too short")}
	}
	flags := envelope[0]
	originalLen := readUint32(envelope[1:5])
	payload := envelope[5:]

	if flags&flagEncrypted != 0 {
		if !s.cfg.Encrypt {
			return nil, &s3store.Error{Kind: s3store.KindConfig, Op: "httpio.decode", Err: fmt.Errorf("object is encrypted but no password configured")}
		}
		plain, err := decryptBlock(s.km, idx, payload)
		if err != nil {
			return nil, err
		}
		payload = plain
	}
	if flags&flagCompressed != 0 {
		plain, err := inflate(payload, int(originalLen))
		if err != nil {
			return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decode", Err: err}
		}
		payload = plain
	}
	return payload, nil
}

const (
	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1
)

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// listBlocksRaw pages through every object under the block prefix,
// skipping the reserved metadata key, invoking fn with the decoded index.
func (s *Store) listBlocksRaw(ctx context.Context, fn func(idx uint32) error) error {
	metaKey := metadataObjectKey(s.cfg.Prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.ListBlocks", Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == metaKey {
				continue
			}
			idx, ok := s.parseBlockKey(key)
			if !ok {
				continue
			}
			if err := fn(idx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) parseBlockKey(key string) (uint32, bool) {
	if len(key) <= len(s.cfg.Prefix) {
		return 0, false
	}
	hexPart := key[len(s.cfg.Prefix):]
	var idx uint32
	for _, c := range []byte(hexPart) {
		var v uint32
		switch {
		case c >= '0' && c <= '9':
			v = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			v = uint32(c-'a') + 10
		default:
			return 0, false
		}
		idx = idx<<4 | v
	}
	return idx, true
}

// ListBlocks implements store.Store.
func (s *Store) ListBlocks(ctx context.Context, fn func(idx uint32) error) error {
	if err := s.checkShutdown(); err != nil {
		return err
	}
	return s.listBlocksRaw(ctx, fn)
}

// SurveyNonZero implements store.Store. Absence of an object at this layer
// already means "zero" (spec.md §4.1's contract for the bottom layer), so
// survey is identical to enumeration.
func (s *Store) SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error {
	return s.ListBlocks(ctx, fn)
}

// Flush implements store.Store. Every Write above already completed a
// synchronous PUT, so there is nothing further to durably commit; this is
// a fence only.
func (s *Store) Flush(ctx context.Context) error {
	return s.checkShutdown()
}

// Shutdown implements store.Store.
func (s *Store) Shutdown(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.shutdown = true
	s.shutdownMu.Unlock()
	return nil
}

// Destroy implements store.Store: deletes every block object and the
// metadata object.
func (s *Store) Destroy(ctx context.Context) error {
	var keys []types.ObjectIdentifier
	err := s.listBlocksRaw(ctx, func(idx uint32) error {
		keys = append(keys, types.ObjectIdentifier{Key: aws.String(s.blockKey(idx))})
		return nil
	})
	if err != nil {
		return err
	}
	keys = append(keys, types.ObjectIdentifier{Key: aws.String(metadataObjectKey(s.cfg.Prefix))})

	const batchSize = 1000
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.Bucket),
			Delete: &types.Delete{Objects: keys[i:end]},
		})
		if err != nil {
			return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.Destroy", Err: err}
		}
	}
	return nil
}

var _ s3store.Store = (*Store)(nil)
