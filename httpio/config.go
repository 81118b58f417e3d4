// Package httpio is the bottom layer of the stack: it maps block
// operations onto signed HTTP requests against an S3-compatible object
// store, applying optional compression and encryption, verifying
// integrity, and retrying transient failures with exponential backoff.
package httpio

import "time"

// Config configures the HTTP I/O layer, matching the relevant subset of
// spec.md §6's configuration keys.
type Config struct {
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	SessionToken string

	Compress      bool
	CompressLevel int

	Encrypt   bool
	Password  string
	KeyLength int // derived key length in bytes; default 32 (AES-256)

	NoVerify      bool
	MaxRetries    int
	MaxRetryPause time.Duration
	Timeout       time.Duration

	// Endpoint overrides the default AWS endpoint resolution; used for
	// S3-compatible services (e.g. MinIO in integration tests).
	Endpoint       string
	ForcePathStyle bool
}

// DefaultConfig returns sensible defaults for the optional fields.
func DefaultConfig() Config {
	return Config{
		CompressLevel: 6,
		KeyLength:     32,
		MaxRetries:    5,
		MaxRetryPause: 30 * time.Second,
		Timeout:       30 * time.Second,
	}
}

const metadataObjectSuffix = ".s3block-meta"

// metadataObjectKey returns the reserved key holding store parameters.
func metadataObjectKey(prefix string) string {
	return prefix + metadataObjectSuffix
}
