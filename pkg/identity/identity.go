package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/signature"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

// Identity is a signing key pair. It is passed explicitly to whatever needs
// to sign or decrypt on behalf of a party.
type Identity struct {
	privkey *btcec.PrivateKey
	pubkey  string
}

// Generate creates a new random identity.
func Generate() (*Identity, error) {
	privkey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return newIdentity(privkey), nil
}

// Parse accepts a hex encoded private key or its nsec encoding.
func Parse(key string) (*Identity, error) {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "nsec") {
		prefix, value, err := nip19.Decode(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("%w: invalid prefix %s", ErrInvalidPrivateKey, prefix)
		}
		hexKey, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: invalid nsec payload", ErrInvalidPrivateKey)
		}
		key = hexKey
	}

	buf, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrivateKey, err)
	}
	return FromBytes(buf)
}

func FromBytes(buf []byte) (*Identity, error) {
	if len(buf) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: invalid length %d", ErrInvalidPrivateKey, len(buf))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(buf); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: zero or overflowing scalar", ErrInvalidPrivateKey)
	}
	return newIdentity(secp256k1.NewPrivateKey(&scalar)), nil
}

func newIdentity(privkey *btcec.PrivateKey) *Identity {
	return &Identity{
		privkey: privkey,
		pubkey:  hex.EncodeToString(schnorr.SerializePubKey(privkey.PubKey())),
	}
}

// PubKey returns the x-only hex public key, the form used on the relay
// network and inside contracts.
func (i *Identity) PubKey() string {
	return i.pubkey
}

func (i *Identity) PrivKey() *btcec.PrivateKey {
	return i.privkey
}

func (i *Identity) PrivKeyHex() string {
	return hex.EncodeToString(i.privkey.Serialize())
}

func (i *Identity) Npub() (string, error) {
	return nip19.EncodePublicKey(i.pubkey)
}

func (i *Identity) Nsec() (string, error) {
	return nip19.EncodePrivateKey(i.PrivKeyHex())
}

// SignEvent fills pubkey, id and signature of the event.
func (i *Identity) SignEvent(event *nostr.Event) error {
	if err := event.Sign(i.PrivKeyHex()); err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}
	return nil
}

// SignContract signs the contract terms, with the key tweaked by the file
// hash when tweaked is true.
func (i *Identity) SignContract(c contract.UnsignedContract, tweaked bool) ([]byte, error) {
	if tweaked {
		return signature.SignContractTweaked(i.privkey, c)
	}
	return signature.SignContract(i.privkey, c)
}
