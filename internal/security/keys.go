package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	PublicKeyFile  = "audit.pub"
	PrivateKeyFile = "audit.priv"
)

// KeyPair signs audit ledger entries.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a new ed25519 key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("security: generate key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// SaveKeyPair writes both keys as hex files.
func SaveKeyPair(kp KeyPair, pubPath, privPath string) error {
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(kp.Public)), 0o600); err != nil {
		return fmt.Errorf("security: write %s: %w", pubPath, err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(kp.Private)), 0o600); err != nil {
		return fmt.Errorf("security: write %s: %w", privPath, err)
	}
	return nil
}

// EnsureKeyPair loads the key pair in dir, generating it on first use.
// Returns whether new keys were created.
func EnsureKeyPair(dir string) (KeyPair, bool, error) {
	pubPath := filepath.Join(dir, PublicKeyFile)
	privPath := filepath.Join(dir, PrivateKeyFile)

	if _, err := os.Stat(pubPath); errors.Is(err, os.ErrNotExist) {
		kp, err := GenerateKeyPair()
		if err != nil {
			return KeyPair{}, false, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return KeyPair{}, false, fmt.Errorf("security: ensure %s: %w", dir, err)
		}
		if err := SaveKeyPair(kp, pubPath, privPath); err != nil {
			return KeyPair{}, false, err
		}
		return kp, true, nil
	}

	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		return KeyPair{}, false, err
	}
	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		return KeyPair{}, false, err
	}
	return KeyPair{Public: pub, Private: priv}, false, nil
}

// LoadPrivateKey loads a hex-encoded ed25519 private key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("security: invalid private key size")
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKey loads a hex-encoded ed25519 public key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := readHex(path)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("security: invalid public key size")
	}
	return ed25519.PublicKey(raw), nil
}

func readHex(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("security: read %s: %w", path, err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("security: decode %s: %w", path, err)
	}
	return raw, nil
}

// Sign returns the hex signature of data.
func (kp KeyPair) Sign(data []byte) string {
	return hex.EncodeToString(ed25519.Sign(kp.Private, data))
}

// PublicHex is the hex form stored alongside signatures.
func (kp KeyPair) PublicHex() string {
	return hex.EncodeToString(kp.Public)
}

// VerifySignatureFromHex checks a hex signature against a hex public key.
func VerifySignatureFromHex(pubHex string, data []byte, sigHex string) (bool, error) {
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return false, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("security: invalid public key size")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, err
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig), nil
}
