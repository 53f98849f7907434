// Package codec turns serialized entries into opaque text and back.
package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrDecode is returned for any blob that cannot be authenticated and
// decrypted: corruption, a foreign key, or a format change.
var ErrDecode = errors.New("codec: decode failed")

// Codec encodes bytes into an opaque text blob and back.
// Decode must fail with an error matching ErrDecode on malformed input.
type Codec interface {
	Encode(plain []byte) (string, error)
	Decode(text string) ([]byte, error)
}

const KeySize = chacha20poly1305.KeySize

var blobEncoding = base64.RawURLEncoding

// Sealed is an XChaCha20-Poly1305 codec. Blobs are base64url(nonce || ciphertext).
type Sealed struct {
	aead cipher.AEAD
}

// New builds a codec from a raw KeySize-byte key.
func New(key []byte) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return &Sealed{aead: aead}, nil
}

// FromSecret derives the key from a passphrase with HKDF-SHA256.
func FromSecret(secret string) (*Sealed, error) {
	if secret == "" {
		return nil, errors.New("codec: empty secret")
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), []byte("localvault"), []byte("entry-codec v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return New(key)
}

func (s *Sealed) Encode(plain []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return blobEncoding.EncodeToString(s.aead.Seal(nonce, nonce, plain, nil)), nil
}

func (s *Sealed) Decode(text string) ([]byte, error) {
	raw, err := blobEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: blob too short", ErrDecode)
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return plain, nil
}
