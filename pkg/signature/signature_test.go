package signature_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/ark-network/pls/pkg/signature"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (*btcec.PrivateKey, string) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv, hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

func newTerms(t *testing.T, arbitrator string) contract.UnsignedContract {
	_, other := newKey(t)
	_, client := newKey(t)
	return contract.UnsignedContract{
		Network:           "bitcoin_testnet",
		FileHash:          strings.Repeat("ab", 32),
		ArbitratorPubkeys: []string{arbitrator, other},
		ArbitratorsQuorum: 1,
		ClientPubkeys:     []string{client},
	}
}

func TestSignVerify(t *testing.T) {
	priv, _ := newKey(t)
	digest := sha256.Sum256([]byte("digest"))
	pubkey := priv.PubKey().SerializeCompressed()

	sig, err := signature.Sign(priv, digest[:])
	require.NoError(t, err)
	require.Len(t, sig, signature.SignatureLen)

	again, err := signature.Sign(priv, digest[:])
	require.NoError(t, err)
	require.Equal(t, sig, again)

	require.True(t, signature.Verify(pubkey, digest[:], sig))
	require.True(t, signature.Verify(pubkey[1:], digest[:], sig))

	t.Run("invalid", func(t *testing.T) {
		other := sha256.Sum256([]byte("other"))
		otherPriv, _ := newKey(t)

		for i := 0; i < len(sig)*8; i += 37 {
			flipped := append([]byte{}, sig...)
			flipped[i/8] ^= 1 << (i % 8)
			require.False(t, signature.Verify(pubkey, digest[:], flipped), "bit %d", i)
		}

		require.False(t, signature.Verify(pubkey, other[:], sig))
		require.False(t, signature.Verify(otherPriv.PubKey().SerializeCompressed(), digest[:], sig))
		require.False(t, signature.Verify(pubkey, digest[:], sig[:63]))
		require.False(t, signature.Verify(pubkey, digest[:], append(sig, 0)))
		require.False(t, signature.Verify(pubkey, digest[:31], sig))
		require.False(t, signature.Verify(pubkey[:10], digest[:], sig))
		require.False(t, signature.Verify(nil, nil, nil))
	})

	_, err = signature.Sign(priv, digest[:16])
	require.Error(t, err)
	_, err = signature.Sign(nil, digest[:])
	require.ErrorIs(t, err, keys.ErrMalformedKey)
}

func TestParseSignature(t *testing.T) {
	priv, _ := newKey(t)
	digest := sha256.Sum256([]byte("digest"))
	sig, err := signature.Sign(priv, digest[:])
	require.NoError(t, err)

	parsed, err := signature.ParseSignature(hex.EncodeToString(sig))
	require.NoError(t, err)
	require.Equal(t, sig, parsed)

	for _, s := range []string{"", "zz", strings.Repeat("00", 63), strings.Repeat("ff", 64)} {
		_, err := signature.ParseSignature(s)
		require.ErrorIs(t, err, signature.ErrMalformedSignature, s)
	}
}

func TestContract(t *testing.T) {
	priv, pubkey := newKey(t)
	terms := newTerms(t, pubkey)
	pubkeyBuf, err := hex.DecodeString(pubkey)
	require.NoError(t, err)

	t.Run("untweaked", func(t *testing.T) {
		sig, err := signature.SignContract(priv, terms)
		require.NoError(t, err)
		require.True(t, signature.VerifyContract(pubkeyBuf, terms, sig))

		signed := contract.NewContract(terms, map[string]string{pubkey: hex.EncodeToString(sig)}, "id")
		require.True(t, signature.VerifyContract(pubkeyBuf, signed.UnsignedContract, sig))

		other := newTerms(t, pubkey)
		require.False(t, signature.VerifyContract(pubkeyBuf, other, sig))
		require.False(t, signature.VerifyContractTweaked(pubkeyBuf, terms, sig))
	})

	t.Run("tweaked", func(t *testing.T) {
		sig, err := signature.SignContractTweaked(priv, terms)
		require.NoError(t, err)
		require.True(t, signature.VerifyContractTweaked(pubkeyBuf, terms, sig))
		require.False(t, signature.VerifyContract(pubkeyBuf, terms, sig))

		tweaked, err := keys.TweakXOnly(pubkey, terms.FileHash)
		require.NoError(t, err)
		tweakedBuf, err := hex.DecodeString(tweaked)
		require.NoError(t, err)
		require.True(t, signature.VerifyContract(tweakedBuf, terms, sig))
	})

	t.Run("invalid contract", func(t *testing.T) {
		invalid := terms
		invalid.ArbitratorsQuorum = 0
		_, err := signature.SignContract(priv, invalid)
		require.ErrorIs(t, err, contract.ErrSchemaValidationFailed)
		require.False(t, signature.VerifyContract(pubkeyBuf, invalid, make([]byte, 64)))
	})
}

func TestVerifyBatch(t *testing.T) {
	items := make([]signature.Item, 0, 8)
	expected := make([]bool, 0, 8)
	for i := 0; i < 8; i++ {
		priv, _ := newKey(t)
		digest := sha256.Sum256([]byte{byte(i)})
		sig, err := signature.Sign(priv, digest[:])
		require.NoError(t, err)
		valid := i%3 != 0
		if !valid {
			sig[0] ^= 0x01
		}
		items = append(items, signature.Item{
			Pubkey:    priv.PubKey().SerializeCompressed(),
			Digest:    digest[:],
			Signature: sig,
		})
		expected = append(expected, valid)
	}

	results, err := signature.VerifyBatch(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, expected, results)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = signature.VerifyBatch(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
}

func TestVerifyContractSignatures(t *testing.T) {
	ctx := context.Background()
	arbitrator, arbitratorKey := newKey(t)
	client, clientKey := newKey(t)
	terms := newTerms(t, arbitratorKey)
	terms.ClientPubkeys = []string{clientKey}

	arbitratorSig, err := signature.SignContractTweaked(arbitrator, terms)
	require.NoError(t, err)
	clientSig, err := signature.SignContractTweaked(client, terms)
	require.NoError(t, err)

	final := contract.NewContract(terms, map[string]string{
		arbitratorKey: hex.EncodeToString(arbitratorSig),
		clientKey:     hex.EncodeToString(clientSig),
	}, "")

	invalid, err := signature.VerifyContractSignatures(ctx, final, true)
	require.NoError(t, err)
	require.Empty(t, invalid)

	invalid, err = signature.VerifyContractSignatures(ctx, final, false)
	require.ErrorIs(t, err, signature.ErrVerificationFailed)
	require.Len(t, invalid, 2)

	untweaked, err := signature.SignContract(client, terms)
	require.NoError(t, err)
	final.Signatures[clientKey] = hex.EncodeToString(untweaked)
	invalid, err = signature.VerifyContractSignatures(ctx, final, true)
	require.ErrorIs(t, err, signature.ErrVerificationFailed)
	require.Equal(t, []string{clientKey}, invalid)
}
