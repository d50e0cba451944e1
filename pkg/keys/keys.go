package keys

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	CompressedLen = btcec.PubKeyBytesLenCompressed
	XOnlyLen      = schnorr.PubKeyBytesLen
	TweakLen      = 32
)

var (
	ErrMalformedKey = errors.New("malformed key")
	ErrInvalidTweak = errors.New("invalid tweak")
)

// XOnly returns the 32-byte x coordinate of a compressed or x-only key,
// discarding the parity.
func XOnly(pubkey []byte) ([]byte, error) {
	switch len(pubkey) {
	case XOnlyLen:
		return append([]byte{}, pubkey...), nil
	case CompressedLen:
		if pubkey[0] != secp256k1.PubKeyFormatCompressedEven &&
			pubkey[0] != secp256k1.PubKeyFormatCompressedOdd {
			return nil, fmt.Errorf("%w: invalid prefix 0x%02x", ErrMalformedKey, pubkey[0])
		}
		return append([]byte{}, pubkey[1:]...), nil
	default:
		return nil, fmt.Errorf("%w: invalid length %d", ErrMalformedKey, len(pubkey))
	}
}

// ParseXOnly lifts the x coordinate of the given key to the curve point with
// even y.
func ParseXOnly(pubkey []byte) (*btcec.PublicKey, error) {
	xonly, err := XOnly(pubkey)
	if err != nil {
		return nil, err
	}
	key, err := schnorr.ParsePubKey(xonly)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, err)
	}
	return key, nil
}

// DecodeHex decodes a hex encoded compressed or x-only key and makes sure it
// is a point on the curve.
func DecodeHex(pubkey string) ([]byte, error) {
	buf, err := hex.DecodeString(pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, err)
	}
	if _, err := ParseXOnly(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// XOnlyHex normalizes a hex encoded compressed or x-only key to its x-only
// hex form.
func XOnlyHex(pubkey string) (string, error) {
	buf, err := DecodeHex(pubkey)
	if err != nil {
		return "", err
	}
	xonly, err := XOnly(buf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(xonly), nil
}

// TweakPubKey computes lift_x(x(pubkey)) + tweak*G and returns it as a
// 33-byte compressed key.
func TweakPubKey(pubkey, tweak []byte) ([]byte, error) {
	t, err := parseTweak(tweak)
	if err != nil {
		return nil, err
	}

	base, err := ParseXOnly(pubkey)
	if err != nil {
		return nil, err
	}

	var p, result secp256k1.JacobianPoint
	base.AsJacobian(&p)

	if t.IsZero() {
		result.Set(&p)
	} else {
		var tG secp256k1.JacobianPoint
		secp256k1.ScalarBaseMultNonConst(t, &tG)
		secp256k1.AddNonConst(&p, &tG, &result)
	}

	if (result.X.IsZero() && result.Y.IsZero()) || result.Z.IsZero() {
		return nil, fmt.Errorf("%w: result is the point at infinity", ErrInvalidTweak)
	}

	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y).SerializeCompressed(), nil
}

// TweakPrivKey returns the private key matching TweakPubKey(priv.PubKey(), tweak).
func TweakPrivKey(priv *btcec.PrivateKey, tweak []byte) (*btcec.PrivateKey, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: missing private key", ErrMalformedKey)
	}

	t, err := parseTweak(tweak)
	if err != nil {
		return nil, err
	}

	d := priv.Key
	if priv.PubKey().SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		d.Negate()
	}
	d.Add(t)

	if d.IsZero() {
		return nil, fmt.Errorf("%w: tweaked private key is zero", ErrInvalidTweak)
	}

	return secp256k1.NewPrivateKey(&d), nil
}

// TweakXOnly tweaks a hex encoded x-only key with a hex encoded tweak,
// typically a file hash, and returns the x-only hex of the result.
func TweakXOnly(pubkey, tweak string) (string, error) {
	pubkeyBuf, err := hex.DecodeString(pubkey)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedKey, err)
	}
	if len(pubkeyBuf) != XOnlyLen {
		return "", fmt.Errorf("%w: expected x-only key", ErrMalformedKey)
	}
	tweakBuf, err := hex.DecodeString(tweak)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidTweak, err)
	}

	tweaked, err := TweakPubKey(pubkeyBuf, tweakBuf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(tweaked[1:]), nil
}

func parseTweak(tweak []byte) (*secp256k1.ModNScalar, error) {
	if len(tweak) != TweakLen {
		return nil, fmt.Errorf("%w: invalid length %d", ErrInvalidTweak, len(tweak))
	}
	t := new(secp256k1.ModNScalar)
	if overflow := t.SetByteSlice(tweak); overflow {
		return nil, fmt.Errorf("%w: exceeds curve order", ErrInvalidTweak)
	}
	return t, nil
}
