package network

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	elementsnetwork "github.com/vulpemventures/go-elements/network"
	"github.com/vulpemventures/go-elements/payment"
)

var ErrUnknownNetwork = errors.New("unknown network")

// Network describes one of the chains a contract collateral can live on.
// The curve domain is shared by all of them, only address and version
// parameters differ.
type Network struct {
	Name      string
	IsLiquid  bool
	IsTestnet bool

	bitcoinParams *chaincfg.Params
	liquidParams  *elementsnetwork.Network
}

var (
	Bitcoin = Network{
		Name:          "bitcoin",
		bitcoinParams: &chaincfg.MainNetParams,
	}
	BitcoinTestNet = Network{
		Name:          "bitcoin_testnet",
		IsTestnet:     true,
		bitcoinParams: &chaincfg.TestNet3Params,
	}
	Liquid = Network{
		Name:         "liquid",
		IsLiquid:     true,
		liquidParams: &elementsnetwork.Liquid,
	}
	LiquidTestNet = Network{
		Name:         "liquid_testnet",
		IsLiquid:     true,
		IsTestnet:    true,
		liquidParams: &elementsnetwork.Testnet,
	}
)

var (
	bitcoinNetworks = []*Network{&Bitcoin, &BitcoinTestNet}
	liquidNetworks  = []*Network{&Liquid, &LiquidTestNet}

	registry = map[string]*Network{
		Bitcoin.Name:        &Bitcoin,
		BitcoinTestNet.Name: &BitcoinTestNet,
		Liquid.Name:         &Liquid,
		LiquidTestNet.Name:  &LiquidTestNet,
	}
)

// Resolve returns the descriptor registered under the exact, case-sensitive id.
func Resolve(id string) (*Network, error) {
	net, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, id)
	}
	return net, nil
}

func IsValid(id string) bool {
	_, ok := registry[id]
	return ok
}

func IsBitcoin(id string) bool {
	for _, net := range bitcoinNetworks {
		if net.Name == id {
			return true
		}
	}
	return false
}

func IsLiquid(id string) bool {
	for _, net := range liquidNetworks {
		if net.Name == id {
			return true
		}
	}
	return false
}

func IsTestnet(id string) bool {
	net, ok := registry[id]
	return ok && net.IsTestnet
}

// Names lists the supported network identifiers, bitcoin ones first.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, net := range append(append([]*Network{}, bitcoinNetworks...), liquidNetworks...) {
		names = append(names, net.Name)
	}
	return names
}

// ChainParams returns the bitcoin chain parameters, nil for liquid networks.
func (n *Network) ChainParams() *chaincfg.Params {
	return n.bitcoinParams
}

// ElementsParams returns the elements chain parameters, nil for bitcoin networks.
func (n *Network) ElementsParams() *elementsnetwork.Network {
	return n.liquidParams
}

// TaprootAddress encodes the segwit v1 address paying to the given x-only key.
func (n *Network) TaprootAddress(xonly []byte) (string, error) {
	if len(xonly) != schnorr.PubKeyBytesLen {
		return "", fmt.Errorf("invalid x-only key length %d", len(xonly))
	}

	if n.IsLiquid {
		key, err := schnorr.ParsePubKey(xonly)
		if err != nil {
			return "", fmt.Errorf("failed to parse x-only key: %w", err)
		}
		p2tr, err := payment.FromTweakedKey(key, n.liquidParams, nil)
		if err != nil {
			return "", err
		}
		return p2tr.TaprootAddress()
	}

	addr, err := btcutil.NewAddressTaproot(xonly, n.bitcoinParams)
	if err != nil {
		return "", fmt.Errorf("failed to get address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

func (n *Network) String() string {
	return n.Name
}
