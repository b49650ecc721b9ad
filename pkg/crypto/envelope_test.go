package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func testEnvelope(t *testing.T) *Envelope {
	t.Helper()
	key := bytes.Repeat([]byte{0xAB}, 32)
	env, err := NewEnvelope(key)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	return env
}

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{
			name:    "valid 32-byte key",
			key:     make([]byte, 32),
			wantErr: false,
		},
		{
			name:    "invalid short key",
			key:     make([]byte, 16),
			wantErr: true,
		},
		{
			name:    "invalid long key",
			key:     make([]byte, 64),
			wantErr: true,
		},
		{
			name:    "empty key",
			key:     []byte{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEnvelope() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && env == nil {
				t.Error("NewEnvelope() returned nil without error")
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	env := testEnvelope(t)

	plaintexts := [][]byte{
		[]byte("secret"),
		[]byte("a"),
		bytes.Repeat([]byte("session data "), 512),
		{0x00, 0xFF, 0x7F},
	}

	for _, plaintext := range plaintexts {
		sealed, err := env.Seal(plaintext)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		if bytes.Contains(sealed, plaintext) {
			t.Error("sealed output contains plaintext")
		}

		opened, err := env.Open(sealed)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Errorf("round trip mismatch: got %q, want %q", opened, plaintext)
		}
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	env := testEnvelope(t)

	sealed, err := env.Seal(nil)
	if err != nil {
		t.Fatalf("Seal(nil) error = %v", err)
	}
	if len(sealed) != 0 {
		t.Errorf("Seal(nil) = %d bytes, want empty", len(sealed))
	}

	opened, err := env.Open(sealed)
	if err != nil {
		t.Fatalf("Open(empty) error = %v", err)
	}
	if len(opened) != 0 {
		t.Errorf("Open(empty) = %d bytes, want empty", len(opened))
	}
}

func TestSealProducesFreshNonce(t *testing.T) {
	env := testEnvelope(t)

	a, err := env.Seal([]byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Seal([]byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("sealing the same plaintext twice produced identical output")
	}
}

func TestOpenTamperedData(t *testing.T) {
	env := testEnvelope(t)

	sealed, err := env.Seal([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	// Flip bit 13 (byte 1, bit 5).
	tampered := make([]byte, len(sealed))
	copy(tampered, sealed)
	tampered[1] ^= 1 << 5

	if _, err := env.Open(tampered); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("Open(tampered) error = %v, want ErrDecryptFailed", err)
	}
}

func TestOpenWrongKey(t *testing.T) {
	env := testEnvelope(t)

	sealed, err := env.Seal([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewEnvelope(bytes.Repeat([]byte{0xCD}, 32))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Open(sealed); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("Open with wrong key error = %v, want ErrDecryptFailed", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	env := testEnvelope(t)

	if _, err := env.Open([]byte{0x01, 0x02, 0x03}); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open(short) error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestFromEnv(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv(MasterKeyEnv, hex.EncodeToString(key))
	env, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if env == nil {
		t.Fatal("FromEnv() returned nil envelope")
	}

	t.Setenv(MasterKeyEnv, "not-hex")
	if _, err := FromEnv(); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("FromEnv(bad hex) error = %v, want ErrKeyFormat", err)
	}

	t.Setenv(MasterKeyEnv, "")
	if _, err := FromEnv(); !errors.Is(err, ErrKeyMissing) {
		t.Errorf("FromEnv(unset) error = %v, want ErrKeyMissing", err)
	}
}
