package contract

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ark-network/pls/pkg/keys"
	"github.com/ark-network/pls/pkg/network"
)

const FileHashLen = 32

var (
	ErrSchemaValidationFailed = errors.New("schema validation failed")
	ErrHashMismatch           = errors.New("hash mismatch")
)

// Collateral describes the amount locked for the contract. Asset is only
// meaningful on liquid networks, empty means the native asset.
type Collateral struct {
	Network string `json:"network"`
	Amount  uint64 `json:"amount"`
	Asset   string `json:"asset,omitempty"`
}

// UnsignedContract holds the terms every party commits to.
type UnsignedContract struct {
	Network           string      `json:"network"`
	FileHash          string      `json:"fileHash"`
	Collateral        *Collateral `json:"collateral,omitempty"`
	ArbitratorPubkeys []string    `json:"arbitratorPubkeys"`
	ArbitratorsQuorum int         `json:"arbitratorsQuorum"`
	ClientPubkeys     []string    `json:"clientPubkeys"`
}

// Contract is an UnsignedContract together with the collected signatures,
// keyed by the x-only hex pubkey of the signer. Neither the signatures nor
// the request id are part of the commitment.
type Contract struct {
	UnsignedContract
	Signatures map[string]string `json:"signatures"`
	RequestId  string            `json:"requestId,omitempty"`
}

func (c UnsignedContract) Validate() error {
	if !network.IsValid(c.Network) {
		return schemaErr("invalid network %q", c.Network)
	}

	if buf, err := hex.DecodeString(c.FileHash); err != nil || len(buf) != FileHashLen {
		return schemaErr("file hash must be %d hex encoded bytes", FileHashLen)
	}

	if c.Collateral != nil {
		if err := c.Collateral.validate(c.Network); err != nil {
			return err
		}
	}

	if len(c.ArbitratorPubkeys) <= 0 {
		return schemaErr("missing arbitrator pubkeys")
	}
	if len(c.ClientPubkeys) <= 0 {
		return schemaErr("missing client pubkeys")
	}
	if c.ArbitratorsQuorum < 1 || c.ArbitratorsQuorum > len(c.ArbitratorPubkeys) {
		return schemaErr(
			"arbitrators quorum must be between 1 and %d, got %d",
			len(c.ArbitratorPubkeys), c.ArbitratorsQuorum,
		)
	}
	if err := validatePubkeys("arbitrator", c.ArbitratorPubkeys); err != nil {
		return err
	}
	if err := validatePubkeys("client", c.ClientPubkeys); err != nil {
		return err
	}
	return nil
}

// IsArbitrator reports whether the given x-only hex key is listed among the
// arbitrators.
func (c UnsignedContract) IsArbitrator(pubkey string) bool {
	return includes(c.ArbitratorPubkeys, pubkey)
}

func (c UnsignedContract) IsClient(pubkey string) bool {
	return includes(c.ClientPubkeys, pubkey)
}

func (c UnsignedContract) IsParticipant(pubkey string) bool {
	return c.IsArbitrator(pubkey) || c.IsClient(pubkey)
}

// Participants returns arbitrators followed by clients, without repetitions.
func (c UnsignedContract) Participants() []string {
	seen := make(map[string]struct{})
	list := make([]string, 0, len(c.ArbitratorPubkeys)+len(c.ClientPubkeys))
	for _, key := range append(append([]string{}, c.ArbitratorPubkeys...), c.ClientPubkeys...) {
		xonly, err := keys.XOnlyHex(key)
		if err != nil {
			continue
		}
		if _, ok := seen[xonly]; ok {
			continue
		}
		seen[xonly] = struct{}{}
		list = append(list, xonly)
	}
	return list
}

func (c UnsignedContract) IsBitcoin() bool {
	return network.IsBitcoin(c.Network)
}

func (c UnsignedContract) IsLiquid() bool {
	return network.IsLiquid(c.Network)
}

// FileHashBytes returns the decoded file hash, to be used as key tweak.
func (c UnsignedContract) FileHashBytes() ([]byte, error) {
	buf, err := hex.DecodeString(c.FileHash)
	if err != nil || len(buf) != FileHashLen {
		return nil, schemaErr("file hash must be %d hex encoded bytes", FileHashLen)
	}
	return buf, nil
}

func (c *Collateral) validate(contractNetwork string) error {
	if !network.IsValid(c.Network) {
		return schemaErr("invalid collateral network %q", c.Network)
	}
	if c.Network != contractNetwork {
		return schemaErr(
			"collateral network %s does not match contract network %s",
			c.Network, contractNetwork,
		)
	}
	if c.Amount == 0 {
		return schemaErr("collateral amount must be positive")
	}
	if len(c.Asset) > 0 {
		if !network.IsLiquid(c.Network) {
			return schemaErr("collateral asset is only supported on liquid networks")
		}
		if buf, err := hex.DecodeString(c.Asset); err != nil || len(buf) != 32 {
			return schemaErr("collateral asset must be 32 hex encoded bytes")
		}
	}
	return nil
}

func validatePubkeys(role string, pubkeys []string) error {
	seen := make(map[string]struct{}, len(pubkeys))
	for _, key := range pubkeys {
		xonly, err := keys.XOnlyHex(key)
		if err != nil {
			return schemaErr("invalid %s pubkey %q: %s", role, key, err)
		}
		if _, ok := seen[xonly]; ok {
			return schemaErr("duplicated %s pubkey %s", role, key)
		}
		seen[xonly] = struct{}{}
	}
	return nil
}

func includes(pubkeys []string, pubkey string) bool {
	target, err := keys.XOnlyHex(pubkey)
	if err != nil {
		return false
	}
	for _, key := range pubkeys {
		if xonly, err := keys.XOnlyHex(key); err == nil && xonly == target {
			return true
		}
	}
	return false
}

func schemaErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidationFailed, fmt.Sprintf(format, args...))
}
