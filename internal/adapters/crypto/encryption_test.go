package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/slovoapp/slovo/internal/domain"
)

var testSalt = []byte("0123456789abcdef")

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewServiceWithSalt("test-passphrase", testSalt)
	if err != nil {
		t.Fatalf("NewServiceWithSalt: %v", err)
	}
	return svc
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc := newTestService(t)

	plaintext := "user prefers metric units"
	ciphertext, err := svc.EncryptString(plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if ciphertext == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := svc.DecryptString(ciphertext)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("decrypted = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	svc := newTestService(t)

	a, _ := svc.EncryptString("same input")
	b, _ := svc.EncryptString("same input")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	svc := newTestService(t)

	ciphertext, err := svc.EncryptString("secret")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}

	tampered := []byte(ciphertext)
	tampered[len(tampered)-5] ^= 'x'
	_, err = svc.DecryptString(string(tampered))
	if !errors.Is(err, domain.ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	svc := newTestService(t)
	other, err := NewServiceWithSalt("different-passphrase", testSalt)
	if err != nil {
		t.Fatalf("NewServiceWithSalt: %v", err)
	}

	ciphertext, _ := svc.EncryptString("secret")
	if _, err := other.DecryptString(ciphertext); !errors.Is(err, domain.ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	svc := newTestService(t)

	for _, input := range []string{"", "not-base64!!!", "YQ=="} {
		if _, err := svc.DecryptString(input); !errors.Is(err, domain.ErrDecryptFailed) {
			t.Errorf("Decrypt(%q): expected ErrDecryptFailed, got %v", input, err)
		}
	}
}

func TestHashForIndexIsStable(t *testing.T) {
	svc := newTestService(t)
	other, _ := NewServiceWithSalt("another-key", testSalt)

	a := svc.HashForIndex("preferred_language")
	b := other.HashForIndex("preferred_language")
	if a != b {
		t.Error("HashForIndex should not depend on the key")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == svc.HashForIndex("other_key") {
		t.Error("distinct inputs hashed to the same value")
	}
}

func TestSaltFileCreatedOnFirstUse(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	if _, err := NewService("pass"); err != nil {
		t.Fatalf("NewService: %v", err)
	}

	path := filepath.Join(dir, "slovo", saltFileName)
	salt, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("salt file not created: %v", err)
	}
	if len(salt) != saltLength {
		t.Errorf("salt length = %d, want %d", len(salt), saltLength)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat salt: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("salt file mode = %o, want 0600", info.Mode().Perm())
	}

	// second construction reuses the same salt
	if _, err := NewService("pass"); err != nil {
		t.Fatalf("NewService (reuse): %v", err)
	}
	salt2, _ := os.ReadFile(path)
	if !bytes.Equal(salt, salt2) {
		t.Error("salt changed between constructions")
	}
}

func TestSameSaltSameKeyInteroperate(t *testing.T) {
	a, _ := NewServiceWithSalt("shared", testSalt)
	b, _ := NewServiceWithSalt("shared", testSalt)

	ct, err := a.EncryptString("portable")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	pt, err := b.DecryptString(ct)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if pt != "portable" {
		t.Errorf("decrypted = %q", pt)
	}
}
