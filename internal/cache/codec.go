package cache

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aegislabs/promptgate/internal/core"
)

// CompressionThreshold is the default byte length above which values are
// compressed before storage.
const CompressionThreshold = 1000

// Codec compresses and, for the Redis tier only, encrypts values on write
// and reverses both on read. Encode reports whether it compressed as a
// separate bool rather than inside the payload; the memory tier keeps that
// flag in Entry.Compressed, and Cache stores it for Redis as a one-byte
// marker in front of the value (see frameCompressed).
type Codec struct {
	threshold int
	level     zstd.EncoderLevel
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	aead      interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewCodec builds a Codec. threshold <= 0 uses CompressionThreshold; level
// is 1-9 inclusive, and level <= 0 uses the default of 6. encryptionKey is
// optional: pass nil to build a codec for the memory tier, which never
// encrypts.
func NewCodec(threshold, level int, encryptionKey []byte) (*Codec, error) {
	if threshold <= 0 {
		threshold = CompressionThreshold
	}
	zstdLevel, err := levelToZstd(level)
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("building zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("building zstd decoder: %w", err)
	}

	c := &Codec{threshold: threshold, level: zstdLevel, encoder: encoder, decoder: decoder}

	if encryptionKey != nil {
		if len(encryptionKey) != chacha20poly1305.KeySize {
			return nil, core.NewGatewayError("cache.NewCodec", core.KindConfiguration,
				fmt.Sprintf("REDIS_ENCRYPTION_KEY must be %d bytes", chacha20poly1305.KeySize), nil, nil)
		}
		aead, err := chacha20poly1305.New(encryptionKey)
		if err != nil {
			return nil, core.NewGatewayError("cache.NewCodec", core.KindConfiguration,
				"failed to initialize encryption cipher", map[string]interface{}{"error": err.Error()}, err)
		}
		c.aead = aead
	}

	return c, nil
}

func levelToZstd(level int) (zstd.EncoderLevel, error) {
	switch {
	case level <= 0:
		return zstd.SpeedBetterCompression, nil // level 6 equivalent
	case level <= 2:
		return zstd.SpeedFastest, nil
	case level <= 5:
		return zstd.SpeedDefault, nil
	case level <= 8:
		return zstd.SpeedBetterCompression, nil
	case level == 9:
		return zstd.SpeedBestCompression, nil
	default:
		return 0, fmt.Errorf("compression level %d out of range [1,9]", level)
	}
}

// Encode compresses plaintext if it exceeds the configured threshold, then
// encrypts the result if this codec was built with an encryption key.
// Returns the stored bytes and whether compression was applied.
func (c *Codec) Encode(plaintext []byte) (stored []byte, compressed bool, err error) {
	payload := plaintext
	if len(plaintext) > c.threshold {
		payload = c.encoder.EncodeAll(plaintext, nil)
		compressed = true
	}

	if c.aead == nil {
		return payload, compressed, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, false, fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, payload, nil)
	return sealed, compressed, nil
}

// Decode reverses Encode: decrypts (if this codec has a key) then
// decompresses (if compressed is true, as recorded in the Entry).
func (c *Codec) Decode(stored []byte, compressed bool) ([]byte, error) {
	payload := stored

	if c.aead != nil {
		nonceSize := c.aead.NonceSize()
		if len(stored) < nonceSize {
			return nil, fmt.Errorf("stored value shorter than nonce size")
		}
		nonce, ciphertext := stored[:nonceSize], stored[nonceSize:]
		opened, err := c.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, fmt.Errorf("decrypting cached value: %w", err)
		}
		payload = opened
	}

	if !compressed {
		return payload, nil
	}

	decoded, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cached value: %w", err)
	}
	return decoded, nil
}

// GenerateEncryptionKey produces a fresh random chacha20poly1305 key,
// exposed for an operator-facing key-provisioning command.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
