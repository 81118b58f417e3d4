package httpio

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	s3store "github.com/marmos91/s3block/store"
)

const (
	pbkdf2Iterations = 100000
	hmacKeyLen       = 32
	hmacSize         = sha256.Size
	saltSize         = 16
)

// keyMaterial is the set of three subkeys derived from the configured
// passphrase: one for AES-CBC, one for per-block IV derivation, one for
// the integrity HMAC. The three are consecutive, non-overlapping slices
// of a single PBKDF2 output, so no key is reused across purposes.
type keyMaterial struct {
	cipherKey []byte
	ivKey     []byte
	hmacKey   []byte
}

func deriveKeys(password string, salt []byte, keyLen int) keyMaterial {
	base := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen+32+hmacKeyLen, sha256.New)
	return keyMaterial{
		cipherKey: base[:keyLen],
		ivKey:     base[keyLen : keyLen+32],
		hmacKey:   base[keyLen+32:],
	}
}

// newSalt generates a fresh per-bucket salt, persisted in the metadata
// object so every instance derives the same keys from the same passphrase.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// deriveIV deterministically derives a per-block IV from the block index
// under ivKey, so that no IV is ever reused for a given key (spec.md
// §4.4) without needing to persist IVs alongside ciphertext.
func deriveIV(ivKey []byte, idx uint32) []byte {
	mac := hmac.New(sha256.New, ivKey)
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], idx)
	mac.Write(idxBytes[:])
	sum := mac.Sum(nil)
	return sum[:aes.BlockSize]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("httpio: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("httpio: invalid PKCS7 padding")
	}
	return data[:len(data)-padLen], nil
}

// encryptBlock encrypts plaintext for block idx under the given key
// material, returning iv||ciphertext||hmac.
func encryptBlock(km keyMaterial, idx uint32, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(km.cipherKey)
	if err != nil {
		return nil, err
	}
	iv := deriveIV(km.ivKey, idx)
	padded := pkcs7Pad(append([]byte(nil), plaintext...), aes.BlockSize)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, km.hmacKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// decryptBlock reverses encryptBlock, failing with KindIntegrity on any
// HMAC mismatch or malformed envelope.
func decryptBlock(km keyMaterial, idx uint32, envelope []byte) ([]byte, error) {
	if len(envelope) < aes.BlockSize+hmacSize {
		return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decryptBlock", Err: fmt.Errorf("envelope too short")}
	}
	iv := envelope[:aes.BlockSize]
	tag := envelope[len(envelope)-hmacSize:]
	ciphertext := envelope[aes.BlockSize : len(envelope)-hmacSize]

	mac := hmac.New(sha256.New, km.hmacKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decryptBlock", Err: fmt.Errorf("HMAC verification failed")}
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decryptBlock", Err: fmt.Errorf("ciphertext not block-aligned")}
	}
	block, err := aes.NewCipher(km.cipherKey)
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded)
	if err != nil {
		return nil, &s3store.Error{Kind: s3store.KindIntegrity, Op: "httpio.decryptBlock", Err: err}
	}
	return plaintext, nil
}
