package httpio

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	s3store "github.com/marmos91/s3block/store"
)

// storeMetadata is the reserved metadata object described in spec.md §6:
// parameters readable by any future instance, overriding configured
// values for compatibility when present.
type storeMetadata struct {
	BlockSize     uint32 `json:"block_size"`
	NumBlocks     uint32 `json:"num_blocks"`
	Compress      bool   `json:"compress"`
	CompressLevel int    `json:"compress_level"`
	Cipher        string `json:"cipher,omitempty"`
	Salt          []byte `json:"salt,omitempty"`
	HMAC          []byte `json:"hmac"`
}

func (m storeMetadata) canonicalBytes() []byte {
	cp := m
	cp.HMAC = nil
	b, _ := json.Marshal(cp)
	return b
}

func metadataHMACKey(cfg Config) []byte {
	if cfg.Encrypt && cfg.Password != "" {
		return []byte(cfg.Password)
	}
	sum := sha256.Sum256([]byte(cfg.Bucket + "/" + cfg.Prefix))
	return sum[:]
}

func (m *storeMetadata) sign(cfg Config) {
	mac := hmac.New(sha256.New, metadataHMACKey(cfg))
	mac.Write(m.canonicalBytes())
	m.HMAC = mac.Sum(nil)
}

func (m storeMetadata) verify(cfg Config) bool {
	mac := hmac.New(sha256.New, metadataHMACKey(cfg))
	mac.Write(m.canonicalBytes())
	return hmac.Equal(mac.Sum(nil), m.HMAC)
}

// loadOrCreateMetadata reads the reserved metadata object; if absent and
// the bucket prefix is otherwise empty it creates one from cfg/geo, and if
// absent with existing blocks it fails CONFIG per spec.md §6 ("If absent
// and the store is non-empty, fail").
func (s *Store) loadOrCreateMetadata(ctx context.Context) error {
	key := metadataObjectKey(s.cfg.Prefix)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key)})
	if err == nil {
		defer out.Body.Close()
		body, rerr := io.ReadAll(out.Body)
		if rerr != nil {
			return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.loadMetadata", Err: rerr}
		}
		var md storeMetadata
		if jerr := json.Unmarshal(body, &md); jerr != nil {
			return &s3store.Error{Kind: s3store.KindConfig, Op: "httpio.loadMetadata", Err: jerr}
		}
		if !md.verify(s.cfg) {
			return &s3store.Error{Kind: s3store.KindConfig, Op: "httpio.loadMetadata", Err: fmt.Errorf("metadata object HMAC mismatch")}
		}
		s.geo.BlockSize = md.BlockSize
		s.geo.NumBlocks = md.NumBlocks
		s.cfg.Compress = md.Compress
		s.cfg.CompressLevel = md.CompressLevel
		if md.Cipher != "" {
			s.cfg.Encrypt = true
			s.salt = md.Salt
		}
		return nil
	}
	if !isNotFoundError(err) {
		return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.loadMetadata", Err: err}
	}

	nonEmpty := false
	_ = s.listBlocksRaw(ctx, func(uint32) error {
		nonEmpty = true
		return errStopIteration
	})
	if nonEmpty {
		return &s3store.Error{Kind: s3store.KindConfig, Op: "httpio.loadMetadata", Err: fmt.Errorf("metadata object absent but store is non-empty")}
	}

	md := storeMetadata{
		BlockSize:     s.geo.BlockSize,
		NumBlocks:     s.geo.NumBlocks,
		Compress:      s.cfg.Compress,
		CompressLevel: s.cfg.CompressLevel,
	}
	if s.cfg.Encrypt {
		salt, serr := newSalt()
		if serr != nil {
			return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.loadMetadata", Err: serr}
		}
		s.salt = salt
		md.Cipher = "AES-256-CBC+HMAC-SHA256"
		md.Salt = salt
	}
	md.sign(s.cfg)

	body, _ := json.Marshal(md)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytesReader(body),
	})
	if err != nil {
		return &s3store.Error{Kind: s3store.KindIO, Op: "httpio.loadMetadata", Err: err}
	}
	return nil
}

var errStopIteration = fmt.Errorf("httpio: stop iteration")
