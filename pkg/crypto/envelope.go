package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// MasterKeyEnv is the environment variable holding the hex-encoded 32-byte master key.
const MasterKeyEnv = "LAZABOT_MASTER_KEY"

// nonceSize is the AES-GCM nonce length prepended to every sealed blob.
const nonceSize = 12

var (
	// ErrKeyMissing indicates the master key environment variable is not set.
	ErrKeyMissing = errors.New("master key environment variable not set")

	// ErrKeyFormat indicates the master key is not 64 hex characters (32 bytes).
	ErrKeyFormat = errors.New("master key must be 32 bytes hex-encoded")

	// ErrCiphertextTooShort indicates a sealed blob shorter than the nonce.
	ErrCiphertextTooShort = errors.New("sealed data too short")

	// ErrDecryptFailed indicates authentication failure: wrong key or tampered data.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Envelope performs authenticated encryption of secrets and session blobs
// using AES-256-GCM. Sealed output is nonce || ciphertext+tag.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope creates an envelope from a raw 32-byte key.
func NewEnvelope(key []byte) (*Envelope, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeyFormat, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Envelope{aead: aead}, nil
}

// FromEnv creates an envelope from the LAZABOT_MASTER_KEY environment variable.
func FromEnv() (*Envelope, error) {
	encoded := os.Getenv(MasterKeyEnv)
	if encoded == "" {
		return nil, fmt.Errorf("%w: %s", ErrKeyMissing, MasterKeyEnv)
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrKeyFormat, err)
	}

	return NewEnvelope(key)
}

// Seal encrypts plaintext and returns nonce || ciphertext+tag.
// Empty plaintext maps to empty output without invoking the cipher.
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return []byte{}, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal, verifying the authentication tag.
func (e *Envelope) Open(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return []byte{}, nil
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextTooShort, len(sealed))
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

// GenerateKey returns 32 cryptographically random bytes suitable for a master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyHex returns a fresh master key in the encoding FromEnv expects.
func GenerateKeyHex() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

var (
	defaultEnvelope *Envelope
	initOnce        sync.Once
	initErr         error
)

// Init eagerly initializes the process-wide envelope from the environment.
// It must be called once at startup, before any component needs Default.
func Init() error {
	initOnce.Do(func() {
		defaultEnvelope, initErr = FromEnv()
	})
	return initErr
}

// Default returns the process-wide envelope. Init must have succeeded first.
func Default() (*Envelope, error) {
	if defaultEnvelope == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}
	return defaultEnvelope, nil
}
