package contract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ark-network/pls/pkg/keys"
	"github.com/fxamacker/cbor/v2"
)

// canonicalMode encodes with the RFC 8949 core deterministic rules: shortest
// integer forms, sorted map keys, no indefinite lengths.
var canonicalMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to build canonical cbor mode: %s", err))
	}
	canonicalMode = mode
}

// committedContract is the exact set of fields a signature commits to. Hex
// strings are carried decoded so that their letter case cannot change the
// commitment, and pubkeys in their x-only form so that a 33-byte key and
// its x-only form commit the same.
type committedContract struct {
	Network           string               `cbor:"network"`
	FileHash          []byte               `cbor:"fileHash"`
	Collateral        *committedCollateral `cbor:"collateral,omitempty"`
	ArbitratorPubkeys [][]byte             `cbor:"arbitratorPubkeys"`
	ArbitratorsQuorum uint64               `cbor:"arbitratorsQuorum"`
	ClientPubkeys     [][]byte             `cbor:"clientPubkeys"`
}

type committedCollateral struct {
	Network string `cbor:"network"`
	Amount  uint64 `cbor:"amount"`
	Asset   []byte `cbor:"asset,omitempty"`
}

// Canonicalize returns the deterministic byte serialization of the committed
// contract fields.
func Canonicalize(c UnsignedContract) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	fileHash, _ := hex.DecodeString(c.FileHash)
	committed := committedContract{
		Network:           c.Network,
		FileHash:          fileHash,
		ArbitratorPubkeys: xonlyKeys(c.ArbitratorPubkeys),
		ArbitratorsQuorum: uint64(c.ArbitratorsQuorum),
		ClientPubkeys:     xonlyKeys(c.ClientPubkeys),
	}
	if c.Collateral != nil {
		asset, _ := hex.DecodeString(c.Collateral.Asset)
		committed.Collateral = &committedCollateral{
			Network: c.Collateral.Network,
			Amount:  c.Collateral.Amount,
			Asset:   asset,
		}
	}

	buf, err := canonicalMode.Marshal(committed)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize contract: %w", err)
	}
	return buf, nil
}

func Hash(canonical []byte) [32]byte {
	return sha256.Sum256(canonical)
}

// Digest canonicalizes and hashes the contract in one go.
func Digest(c UnsignedContract) ([32]byte, error) {
	canonical, err := Canonicalize(c)
	if err != nil {
		return [32]byte{}, err
	}
	return Hash(canonical), nil
}

func (c UnsignedContract) Digest() ([32]byte, error) {
	return Digest(c)
}

// FileHash computes the hex encoded SHA-256 of the referenced file.
func FileHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckFile hashes the content of r and fails with ErrHashMismatch when it
// is not the file c refers to.
func CheckFile(c UnsignedContract, r io.Reader) error {
	fileHash, err := FileHash(r)
	if err != nil {
		return err
	}
	if !strings.EqualFold(fileHash, c.FileHash) {
		return fmt.Errorf("%w: file hash %s, contract refers to %s", ErrHashMismatch, fileHash, c.FileHash)
	}
	return nil
}

// ParseUnsignedContract decodes a JSON contract ignoring unknown fields, then
// validates its shape.
func ParseUnsignedContract(buf []byte) (*UnsignedContract, error) {
	c := &UnsignedContract{}
	if err := json.Unmarshal(buf, c); err != nil {
		return nil, schemaErr("%s", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func ParseContract(buf []byte) (*Contract, error) {
	c := &Contract{}
	if err := json.Unmarshal(buf, c); err != nil {
		return nil, schemaErr("%s", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeStrict decodes JSON into dst rejecting any field that is not part
// of its schema.
func DecodeStrict(buf []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return schemaErr("%s", err)
	}
	if dec.More() {
		return schemaErr("trailing data after contract")
	}

	switch c := dst.(type) {
	case *UnsignedContract:
		return c.Validate()
	case *Contract:
		return c.Validate()
	}
	return nil
}

// xonlyKeys expects keys already checked by Validate.
func xonlyKeys(pubkeys []string) [][]byte {
	list := make([][]byte, 0, len(pubkeys))
	for _, key := range pubkeys {
		buf, _ := keys.DecodeHex(key)
		xonly, _ := keys.XOnly(buf)
		list = append(list, xonly)
	}
	return list
}
