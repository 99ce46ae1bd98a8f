package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt 2: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")

	if !bytes.Equal(DeriveKey("biscuit", salt), DeriveKey("biscuit", salt)) {
		t.Error("same passphrase+salt should produce same key")
	}
	if bytes.Equal(DeriveKey("biscuit", salt), DeriveKey("gravy", salt)) {
		t.Error("different passphrases should produce different keys")
	}
	if n := len(DeriveKey("biscuit", salt)); n != keySize {
		t.Errorf("key length = %d, want %d", n, keySize)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	original := []byte("SQLite format 3\x00 pretend snapshot")

	sealed, err := Seal(original, "biscuit")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("pretend snapshot")) {
		t.Error("sealed output contains plaintext")
	}

	got, err := Open(sealed, "biscuit")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("round trip = %q, want %q", got, original)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, _ := Seal([]byte("same"), "biscuit")
	b, _ := Seal([]byte("same"), "biscuit")
	if bytes.Equal(a, b) {
		t.Error("two seals of the same input should differ")
	}
}

func TestOpenRejects(t *testing.T) {
	sealed, err := Seal([]byte("data"), "biscuit")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name       string
		data       []byte
		passphrase string
	}{
		{"wrong passphrase", sealed, "gravy"},
		{"tampered", tampered, "biscuit"},
		{"too short", []byte("PWL"), "biscuit"},
		{"no magic", bytes.Repeat([]byte{1}, 64), "biscuit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data, tt.passphrase); !errors.Is(err, ErrBadPassphrase) {
				t.Errorf("err = %v, want ErrBadPassphrase", err)
			}
		})
	}
}

func TestSealEmptyPassphrase(t *testing.T) {
	if _, err := Seal([]byte("data"), ""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}
