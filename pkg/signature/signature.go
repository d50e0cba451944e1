package signature

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

const (
	DigestLen    = 32
	SignatureLen = schnorr.SignatureSize
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrVerificationFailed = errors.New("signature verification failed")
)

// Sign produces a BIP-340 signature of the 32-byte digest. Nonces are derived
// deterministically (RFC6979 with the BIP-340 tag as extra data).
func Sign(priv *btcec.PrivateKey, digest []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: missing private key", keys.ErrMalformedKey)
	}
	if len(digest) != DigestLen {
		return nil, fmt.Errorf("invalid digest length %d", len(digest))
	}
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	return sig.Serialize(), nil
}

// Verify checks sig against the x-only form of pubkey (32 or 33 bytes). It
// never panics and returns false for anything malformed.
func Verify(pubkey, digest, sig []byte) bool {
	if len(sig) != SignatureLen || len(digest) != DigestLen {
		return false
	}
	key, err := keys.ParseXOnly(pubkey)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, key)
}

// ParseSignature decodes a hex encoded 64-byte signature.
func ParseSignature(sig string) ([]byte, error) {
	buf, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSignature, err)
	}
	if len(buf) != SignatureLen {
		return nil, fmt.Errorf("%w: invalid length %d", ErrMalformedSignature, len(buf))
	}
	if _, err := schnorr.ParseSignature(buf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedSignature, err)
	}
	return buf, nil
}

// SignContract signs the digest of the stripped contract terms.
func SignContract(priv *btcec.PrivateKey, c contract.UnsignedContract) ([]byte, error) {
	digest, err := contract.Digest(c)
	if err != nil {
		return nil, err
	}
	return Sign(priv, digest[:])
}

// VerifyContract checks sig against the digest of the stripped contract
// terms and the given pubkey.
func VerifyContract(pubkey []byte, c contract.UnsignedContract, sig []byte) bool {
	digest, err := contract.Digest(c)
	if err != nil {
		return false
	}
	return Verify(pubkey, digest[:], sig)
}

// SignContractTweaked signs with the private key tweaked by the contract file
// hash.
func SignContractTweaked(priv *btcec.PrivateKey, c contract.UnsignedContract) ([]byte, error) {
	tweak, err := c.FileHashBytes()
	if err != nil {
		return nil, err
	}
	tweaked, err := keys.TweakPrivKey(priv, tweak)
	if err != nil {
		return nil, err
	}
	return SignContract(tweaked, c)
}

// VerifyContractTweaked verifies sig against pubkey tweaked by the contract
// file hash.
func VerifyContractTweaked(pubkey []byte, c contract.UnsignedContract, sig []byte) bool {
	tweak, err := c.FileHashBytes()
	if err != nil {
		return false
	}
	tweaked, err := keys.TweakPubKey(pubkey, tweak)
	if err != nil {
		return false
	}
	return VerifyContract(tweaked, c, sig)
}
