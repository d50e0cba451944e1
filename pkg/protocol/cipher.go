package protocol

import (
	"fmt"

	"github.com/ark-network/pls/pkg/identity"
	"github.com/nbd-wtf/go-nostr/nip04"
)

const NIP04 = "nip04"

// Cipher derives a shared key between two parties and encrypts direct
// messages with it. Implementations are interchangeable without affecting the
// rest of the protocol.
type Cipher interface {
	Name() string
	Encrypt(plaintext string, sender *identity.Identity, recipient string) (string, error)
	Decrypt(ciphertext string, receiver *identity.Identity, sender string) (string, error)
}

// NewCipher returns the cipher registered under name.
func NewCipher(name string) (Cipher, error) {
	switch name {
	case NIP04, "":
		return NIP04Cipher{}, nil
	default:
		return nil, fmt.Errorf("unsupported direct message cipher %q", name)
	}
}

// NIP04Cipher is ECDH over secp256k1 followed by AES-256-CBC.
type NIP04Cipher struct{}

func (NIP04Cipher) Name() string {
	return NIP04
}

func (NIP04Cipher) Encrypt(plaintext string, sender *identity.Identity, recipient string) (string, error) {
	secret, err := nip04.ComputeSharedSecret(recipient, sender.PrivKeyHex())
	if err != nil {
		return "", fmt.Errorf("failed to compute shared secret: %w", err)
	}
	ciphertext, err := nip04.Encrypt(plaintext, secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt message: %w", err)
	}
	return ciphertext, nil
}

func (NIP04Cipher) Decrypt(ciphertext string, receiver *identity.Identity, sender string) (string, error) {
	secret, err := nip04.ComputeSharedSecret(sender, receiver.PrivKeyHex())
	if err != nil {
		return "", fmt.Errorf("failed to compute shared secret: %w", err)
	}
	plaintext, err := nip04.Decrypt(ciphertext, secret)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt message: %w", err)
	}
	return plaintext, nil
}
