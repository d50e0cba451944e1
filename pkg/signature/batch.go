package signature

import (
	"context"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/keys"
	"golang.org/x/sync/errgroup"
)

// Item is a single (pubkey, digest, signature) triple to check.
type Item struct {
	Pubkey    []byte
	Digest    []byte
	Signature []byte
}

// VerifyBatch checks all items in parallel and reports the validity of each
// one, in order. Verification is pure so items share nothing.
func VerifyBatch(ctx context.Context, items []Item) ([]bool, error) {
	results := make([]bool, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i := range items {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := items[i]
			results[i] = Verify(item.Pubkey, item.Digest, item.Signature)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifyContractSignatures checks every signature attached to c against its
// terms, tweaking the signer keys by the file hash unless tweaked is false.
// It returns the sorted signers whose signature did not verify, and fails
// with ErrVerificationFailed if any did.
func VerifyContractSignatures(
	ctx context.Context, c contract.Contract, tweaked bool,
) ([]string, error) {
	digest, err := contract.Digest(c.UnsignedContract)
	if err != nil {
		return nil, err
	}
	tweak, err := c.FileHashBytes()
	if err != nil {
		return nil, err
	}

	signers := make([]string, 0, len(c.Signatures))
	for signer := range c.Signatures {
		signers = append(signers, signer)
	}
	sort.Strings(signers)

	items := make([]Item, 0, len(signers))
	for _, signer := range signers {
		pubkey, err := keys.DecodeHex(signer)
		if err != nil {
			return nil, err
		}
		if tweaked {
			if pubkey, err = keys.TweakPubKey(pubkey, tweak); err != nil {
				return nil, err
			}
		}
		sig, err := hex.DecodeString(c.Signatures[signer])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedSignature, err)
		}
		items = append(items, Item{Pubkey: pubkey, Digest: digest[:], Signature: sig})
	}

	results, err := VerifyBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	invalid := make([]string, 0)
	for i, valid := range results {
		if !valid {
			invalid = append(invalid, signers[i])
		}
	}
	if len(invalid) > 0 {
		return invalid, fmt.Errorf("%w: %d of %d signatures", ErrVerificationFailed, len(invalid), len(items))
	}
	return invalid, nil
}
