// Package crypto provides authenticated encryption for memory payloads
// persisted outside the process. Keys are derived from a passphrase via
// PBKDF2 with a per-install salt, so ciphertexts survive restarts but
// are useless without the passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/pbkdf2"

	"github.com/slovoapp/slovo/internal/domain"
)

const (
	keyIterations = 480000
	keyLength     = 32
	saltLength    = 16
	saltFileName  = "encryption.salt"
)

// Service implements ports.EncryptionService with AES-256-GCM
type Service struct {
	aead cipher.AEAD
}

// NewService derives the key from passphrase and the install salt. The
// salt is created on first use at $XDG_DATA_HOME/slovo/encryption.salt
// with mode 0600.
func NewService(passphrase string) (*Service, error) {
	salt, err := loadOrCreateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption salt: %w", err)
	}
	return NewServiceWithSalt(passphrase, salt)
}

// NewServiceWithSalt skips the salt file, for tests and callers that
// manage salt storage themselves.
func NewServiceWithSalt(passphrase string, salt []byte) (*Service, error) {
	if len(salt) != saltLength {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", saltLength, len(salt))
	}

	key := pbkdf2.Key([]byte(passphrase), salt, keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext)
func (s *Service) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign-key ciphertexts return
// domain.ErrDecryptFailed.
func (s *Service) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", domain.ErrDecryptFailed, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", domain.ErrDecryptFailed)
	}

	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptFailed, err)
	}
	return plaintext, nil
}

func (s *Service) EncryptString(plaintext string) (string, error) {
	return s.Encrypt([]byte(plaintext))
}

func (s *Service) DecryptString(ciphertext string) (string, error) {
	plaintext, err := s.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// HashForIndex returns a stable SHA-256 hex digest for equality lookup
// on encrypted columns.
func (s *Service) HashForIndex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func loadOrCreateSalt() ([]byte, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, saltFileName)

	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltLength {
			return nil, fmt.Errorf("salt file %s is corrupt (%d bytes)", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

func dataDir() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "slovo"), nil
		}
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "slovo"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "slovo"), nil
}
