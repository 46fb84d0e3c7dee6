package chain

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Keypair is an ed25519 signing key with a base58 account address.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// ParseKeypair decodes a base58 secret: either a 32-byte seed or the full
// 64-byte private key (seed || public key) as exported by common wallets.
func ParseKeypair(secret string) (*Keypair, error) {
	raw, err := base58.Decode(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	return &Keypair{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}, nil
}

// Address returns the base58 account address derived from the public key.
func (k *Keypair) Address() string {
	if k == nil {
		return ""
	}
	return base58.Encode(k.pub)
}

func (k *Keypair) Sign(message []byte) []byte {
	if k == nil {
		return nil
	}
	return ed25519.Sign(k.priv, message)
}

// DecodeAddress validates a base58 account address and returns its 32 bytes.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("address must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return raw, nil
}
