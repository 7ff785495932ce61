package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// =============================================================================
// Keypair
// =============================================================================

// Keypair is the operator's ed25519 signing identity. Its public key
// is the authority recorded on every target it creates, and every RPC
// request carries a signature made with it.
type Keypair struct {
	priv ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// LoadKeypair reads a keypair file: a JSON array of the 64 private key
// bytes (seed followed by public key).
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file %s: %w", path, err)
	}

	var raw []byte
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file %s: expected %d key bytes, found %d", path, ed25519.PrivateKeySize, len(raw))
	}

	return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
}

// Save writes the keypair to path, readable only by the owner.
func (k *Keypair) Save(path string) error {
	data, err := json.Marshal([]byte(k.priv))
	if err != nil {
		return fmt.Errorf("marshal keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair file %s: %w", path, err)
	}
	return nil
}

// Authority returns the hex-encoded public key.
func (k *Keypair) Authority() string {
	return hex.EncodeToString(k.priv.Public().(ed25519.PublicKey))
}

// Sign returns the hex-encoded ed25519 signature of msg.
func (k *Keypair) Sign(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(k.priv, msg))
}
