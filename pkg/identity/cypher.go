package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime/debug"

	"golang.org/x/crypto/scrypt"
)

const (
	// DefaultScryptN is the scrypt cost recommended for interactive key
	// stretching (2^20).
	DefaultScryptN = 1 << 20

	saltLen = 32
	keyLen  = 32
)

var ErrInvalidPassword = errors.New("invalid password")

// Cypher encrypts private keys at rest with AES-256-GCM, using a key derived
// from the password with scrypt. The layout is nonce || ciphertext || salt.
type Cypher struct {
	scryptN int
}

// NewCypher returns a cypher with the given scrypt cost, which must be a
// power of 2 greater than 1. Zero selects DefaultScryptN.
func NewCypher(scryptN int) *Cypher {
	if scryptN <= 0 {
		scryptN = DefaultScryptN
	}
	return &Cypher{scryptN}
}

func (c *Cypher) Encrypt(plaintext, password []byte) ([]byte, error) {
	// Make sure derived key material is released as soon as possible.
	defer debug.FreeOSMemory()

	if len(plaintext) == 0 {
		return nil, fmt.Errorf("missing plaintext private key")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("missing encryption password")
	}

	key, salt, err := c.deriveKey(password, nil)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return append(ciphertext, salt...), nil
}

func (c *Cypher) Decrypt(encrypted, password []byte) ([]byte, error) {
	defer debug.FreeOSMemory()

	if len(encrypted) == 0 {
		return nil, fmt.Errorf("missing encrypted private key")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("missing decryption password")
	}
	if len(encrypted) <= saltLen {
		return nil, fmt.Errorf("encrypted private key is too short")
	}

	salt := encrypted[len(encrypted)-saltLen:]
	data := encrypted[:len(encrypted)-saltLen]

	key, _, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted private key is too short")
	}

	// #nosec G407
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, ErrInvalidPassword
	}
	return plaintext, nil
}

func (c *Cypher) deriveKey(password, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	key, err := scrypt.Key(password, salt, c.scryptN, 8, 1, keyLen)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
