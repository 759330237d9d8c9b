package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// GenerateRootKey produces a fresh Ed25519 root keypair for minting
// role tokens.
func GenerateRootKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating root key: %w", err)
	}
	return pub, priv, nil
}

// WritePublicKey writes pub to path as a base64-std-encoded text file.
func WritePublicKey(path string, pub ed25519.PublicKey) error {
	return os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(pub)+"\n"), 0o644)
}

// WritePrivateKey writes priv to path, mode 0600 — it is the root of
// trust for every token this kernel will ever verify.
func WritePrivateKey(path string, priv ed25519.PrivateKey) error {
	return os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(priv)+"\n"), 0o600)
}

// ReadPublicKey loads an Ed25519 public key previously written by
// WritePublicKey.
func ReadPublicKey(path string) (ed25519.PublicKey, error) {
	b, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("key at %s is not a valid ed25519 public key (got %d bytes, want %d)", path, len(b), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(b), nil
}

// ReadPrivateKey loads an Ed25519 private key previously written by
// WritePrivateKey.
func ReadPrivateKey(path string) (ed25519.PrivateKey, error) {
	b, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key at %s is not a valid ed25519 private key (got %d bytes, want %d)", path, len(b), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(b), nil
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding key file %s: %w", path, err)
	}
	return b, nil
}
