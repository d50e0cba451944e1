package contract

import (
	"encoding/hex"
	"sort"

	"github.com/ark-network/pls/pkg/keys"
)

const signatureLen = 64

func (c Contract) Validate() error {
	if err := c.UnsignedContract.Validate(); err != nil {
		return err
	}
	for signer, sig := range c.Signatures {
		if !c.IsParticipant(signer) {
			return schemaErr("signature from non participant %s", signer)
		}
		if buf, err := hex.DecodeString(sig); err != nil || len(buf) != signatureLen {
			return schemaErr("invalid signature for %s", signer)
		}
	}
	return nil
}

// Signers returns the x-only hex keys that signed the contract, sorted.
func (c Contract) Signers() []string {
	signers := make([]string, 0, len(c.Signatures))
	for signer := range c.Signatures {
		if xonly, err := keys.XOnlyHex(signer); err == nil {
			signers = append(signers, xonly)
		}
	}
	sort.Strings(signers)
	return signers
}

// NewContract copies the terms and attaches the given signatures.
func NewContract(terms UnsignedContract, signatures map[string]string, requestId string) Contract {
	sigs := make(map[string]string, len(signatures))
	for signer, sig := range signatures {
		sigs[signer] = sig
	}
	terms.ArbitratorPubkeys = append([]string{}, terms.ArbitratorPubkeys...)
	terms.ClientPubkeys = append([]string{}, terms.ClientPubkeys...)
	if terms.Collateral != nil {
		collateral := *terms.Collateral
		terms.Collateral = &collateral
	}
	return Contract{
		UnsignedContract: terms,
		Signatures:       sigs,
		RequestId:        requestId,
	}
}
