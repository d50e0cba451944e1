package keys_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/ark-network/pls/pkg/keys"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

const (
	generator   = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	twoTimesG   = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	threeTimesG = "02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
)

func scalar(v byte) []byte {
	buf := make([]byte, 32)
	buf[31] = v
	return buf
}

func mustDecode(t *testing.T, s string) []byte {
	buf, err := hex.DecodeString(s)
	require.NoError(t, err)
	return buf
}

func TestTweakPubKey(t *testing.T) {
	t.Run("vectors", func(t *testing.T) {
		g := mustDecode(t, generator)

		tweaked, err := keys.TweakPubKey(g, scalar(1))
		require.NoError(t, err)
		require.Equal(t, twoTimesG, hex.EncodeToString(tweaked))

		tweaked, err = keys.TweakPubKey(g[1:], scalar(2))
		require.NoError(t, err)
		require.Equal(t, threeTimesG, hex.EncodeToString(tweaked))
	})

	t.Run("deterministic", func(t *testing.T) {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pubkey := priv.PubKey().SerializeCompressed()
		tweak := sha256.Sum256([]byte("file"))

		first, err := keys.TweakPubKey(pubkey, tweak[:])
		require.NoError(t, err)
		second, err := keys.TweakPubKey(pubkey, tweak[:])
		require.NoError(t, err)
		require.Len(t, first, keys.CompressedLen)
		require.Equal(t, first, second)
		require.Contains(t, []byte{0x02, 0x03}, first[0])
	})

	t.Run("parity of input is ignored", func(t *testing.T) {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pubkey := priv.PubKey().SerializeCompressed()
		flipped := append([]byte{}, pubkey...)
		flipped[0] ^= 0x01
		tweak := sha256.Sum256([]byte("parity"))

		a, err := keys.TweakPubKey(pubkey, tweak[:])
		require.NoError(t, err)
		b, err := keys.TweakPubKey(flipped, tweak[:])
		require.NoError(t, err)
		c, err := keys.TweakPubKey(pubkey[1:], tweak[:])
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.Equal(t, a, c)
	})

	t.Run("different tweaks", func(t *testing.T) {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pubkey := priv.PubKey().SerializeCompressed()
		t1 := sha256.Sum256([]byte("a"))
		t2 := sha256.Sum256([]byte("b"))

		k1, err := keys.TweakPubKey(pubkey, t1[:])
		require.NoError(t, err)
		k2, err := keys.TweakPubKey(pubkey, t2[:])
		require.NoError(t, err)
		require.NotEqual(t, k1, k2)
	})

	t.Run("zero tweak", func(t *testing.T) {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pubkey := priv.PubKey().SerializeCompressed()

		tweaked, err := keys.TweakPubKey(pubkey, make([]byte, 32))
		require.NoError(t, err)
		require.Equal(t, pubkey[1:], tweaked[1:])
		require.Equal(t, byte(0x02), tweaked[0])
	})

	t.Run("invalid", func(t *testing.T) {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		pubkey := priv.PubKey().SerializeCompressed()

		// Negating the even-y discrete log of the key lands on infinity.
		d := priv.Key
		if pubkey[0] == 0x03 {
			d.Negate()
		}
		d.Negate()
		infinityTweak := d.Bytes()

		overflow := bytes.Repeat([]byte{0xff}, 32)

		fixtures := []struct {
			name        string
			pubkey      []byte
			tweak       []byte
			expectedErr error
		}{
			{"point at infinity", pubkey, infinityTweak[:], keys.ErrInvalidTweak},
			{"tweak overflow", pubkey, overflow, keys.ErrInvalidTweak},
			{"short tweak", pubkey, make([]byte, 31), keys.ErrInvalidTweak},
			{"short key", pubkey[:20], scalar(1), keys.ErrMalformedKey},
			{"bad prefix", append([]byte{0x04}, pubkey[1:]...), scalar(1), keys.ErrMalformedKey},
			{"not on curve", bytes.Repeat([]byte{0xff}, 32), scalar(1), keys.ErrMalformedKey},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				tweaked, err := keys.TweakPubKey(f.pubkey, f.tweak)
				require.ErrorIs(t, err, f.expectedErr)
				require.Nil(t, tweaked)
			})
		}
	})
}

func TestTweakPrivKey(t *testing.T) {
	for i := 0; i < 16; i++ {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)
		tweak := sha256.Sum256([]byte{byte(i)})

		tweakedPriv, err := keys.TweakPrivKey(priv, tweak[:])
		require.NoError(t, err)
		tweakedPub, err := keys.TweakPubKey(priv.PubKey().SerializeCompressed(), tweak[:])
		require.NoError(t, err)

		require.Equal(t, tweakedPub, tweakedPriv.PubKey().SerializeCompressed())
		require.Equal(t, tweakedPub[1:], schnorr.SerializePubKey(tweakedPriv.PubKey()))
	}

	_, err := keys.TweakPrivKey(nil, scalar(1))
	require.ErrorIs(t, err, keys.ErrMalformedKey)
}

func TestTweakXOnly(t *testing.T) {
	g := mustDecode(t, generator)

	tweaked, err := keys.TweakXOnly(hex.EncodeToString(g[1:]), hex.EncodeToString(scalar(1)))
	require.NoError(t, err)
	require.Equal(t, twoTimesG[2:], tweaked)

	_, err = keys.TweakXOnly(generator, hex.EncodeToString(scalar(1)))
	require.ErrorIs(t, err, keys.ErrMalformedKey)

	_, err = keys.TweakXOnly(generator[2:], "zz")
	require.ErrorIs(t, err, keys.ErrInvalidTweak)
}

func TestXOnlyHex(t *testing.T) {
	xonly, err := keys.XOnlyHex(generator)
	require.NoError(t, err)
	require.Equal(t, generator[2:], xonly)

	xonly, err = keys.XOnlyHex(generator[2:])
	require.NoError(t, err)
	require.Equal(t, generator[2:], xonly)

	_, err = keys.XOnlyHex("0011")
	require.ErrorIs(t, err, keys.ErrMalformedKey)
}
