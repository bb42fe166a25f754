package cache

import (
	"bytes"
	"strings"
	"testing"
)

func TestCodecRoundTripWithoutEncryption(t *testing.T) {
	c, err := NewCodec(10, 6, nil)
	if err != nil {
		t.Fatal(err)
	}

	value := []byte("a value comfortably longer than ten bytes")
	stored, compressed, err := c.Encode(value)
	if err != nil {
		t.Fatal(err)
	}
	if !compressed {
		t.Fatal("value above the 10-byte test threshold should compress")
	}
	decoded, err := c.Decode(stored, compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, value) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, value)
	}
}

func TestCodecSkipsCompressionBelowThreshold(t *testing.T) {
	c, err := NewCodec(1000, 6, nil)
	if err != nil {
		t.Fatal(err)
	}
	value := []byte("small value")
	stored, compressed, err := c.Encode(value)
	if err != nil {
		t.Fatal(err)
	}
	if compressed {
		t.Fatal("value below threshold must not be compressed")
	}
	if !bytes.Equal(stored, value) {
		t.Fatal("uncompressed stored bytes must equal the plaintext")
	}
}

func TestCodecRoundTripWithEncryption(t *testing.T) {
	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCodec(1000, 6, key)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte(strings.Repeat("secret data ", 200))
	stored, compressed, err := c.Encode(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(stored, []byte("secret data")) {
		t.Fatal("encrypted output must not contain recognizable plaintext")
	}

	decoded, err := c.Decode(stored, compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, plaintext) {
		t.Fatal("decrypt+decompress round trip must reproduce the original plaintext")
	}
}

func TestNewCodecRejectsWrongKeyLength(t *testing.T) {
	_, err := NewCodec(1000, 6, []byte("too-short"))
	if err == nil {
		t.Fatal("expected an error for a malformed encryption key")
	}
}

func TestNewCodecRejectsOutOfRangeLevel(t *testing.T) {
	_, err := NewCodec(1000, 10, nil)
	if err == nil {
		t.Fatal("expected an error for compression level outside [1,9]")
	}
}
