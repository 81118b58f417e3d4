// Package store defines the uniform block-store contract shared by every
// layer in the stack: block cache, zero cache, EC protect, and HTTP I/O.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Hash is a content hash (MD5) associated with a non-zero block.
type Hash [md5.Size]byte

// SumHash computes the Hash of buf.
func SumHash(buf []byte) Hash {
	return Hash(md5.Sum(buf))
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero value (no hash supplied).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Store is the operation set every layer in the stack implements.
// A nil buf on Write means "this block is all-zero". A nil expectHash on
// Read means "no conditional fetch requested".
type Store interface {
	// Read fills buf (which must have length B) with the contents of
	// block idx. If expectHash is non-nil and matches the block's
	// currently stored hash, Read returns ErrNotModified and leaves buf
	// untouched. A block that was never written reads back as all-zero
	// (via ErrNotFound handling in the zero cache), never as an error
	// above that layer.
	Read(ctx context.Context, idx uint32, buf []byte, expectHash *Hash) (n int, err error)

	// Write stores buf (length B) as the contents of block idx. buf == nil
	// means "write all-zero". The returned Hash is the content hash of
	// the plaintext payload that was accepted.
	Write(ctx context.Context, idx uint32, buf []byte) (Hash, error)

	// ListBlocks invokes fn once for every block index currently known to
	// be present (i.e., the underlying object store holds an object for
	// it), in unspecified order. Returning an error from fn stops the
	// enumeration and that error is returned from ListBlocks.
	ListBlocks(ctx context.Context, fn func(idx uint32) error) error

	// Flush blocks until every write acknowledged before the call is
	// durable at the next layer down. Calling Flush twice in succession
	// is idempotent and the second call returns promptly.
	Flush(ctx context.Context) error

	// SurveyNonZero invokes fn once for every block index currently known
	// not to be all-zero.
	SurveyNonZero(ctx context.Context, fn func(idx uint32) error) error

	// Shutdown drains in-flight work and blocks new submissions. After
	// Shutdown returns, all other methods fail with ErrShutdown.
	Shutdown(ctx context.Context) error

	// Destroy releases any resources allocated by the layer (including
	// those of its downstream layers) and discards persisted state.
	Destroy(ctx context.Context) error
}

// Config carries the parameters named in the external configuration
// surface that are not owned by a single layer (block geometry).
type Config struct {
	// BlockSize is B, the fixed byte length of every block.
	BlockSize uint32

	// NumBlocks is N, the block count; the store exposes NumBlocks*BlockSize
	// addressable bytes.
	NumBlocks uint32

	// ReadOnly rejects all Write calls with ErrReadOnly without contacting
	// the network.
	ReadOnly bool
}

// Validate checks that the geometry is well-formed: BlockSize is a
// non-zero power of two and NumBlocks is non-zero.
func (c Config) Validate() error {
	if c.BlockSize == 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return &Error{Kind: KindConfig, Op: "Config.Validate", Err: fmt.Errorf("block_size %d is not a non-zero power of two", c.BlockSize)}
	}
	if c.NumBlocks == 0 {
		return &Error{Kind: KindConfig, Op: "Config.Validate", Err: fmt.Errorf("num_blocks must be non-zero")}
	}
	return nil
}

// HexWidth returns the smallest hex-digit count encoding NumBlocks-1, used
// to build block object keys ({prefix}{i:0Xx}).
func (c Config) HexWidth() int {
	if c.NumBlocks <= 1 {
		return 1
	}
	width := 0
	for n := c.NumBlocks - 1; n > 0; n >>= 4 {
		width++
	}
	if width == 0 {
		width = 1
	}
	return width
}
