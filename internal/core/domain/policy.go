package domain

import (
	"fmt"

	"github.com/ark-network/pls/pkg/contract"
)

type KeyMode int

const (
	// KeyModeTweaked signs with keys tweaked by the contract file hash.
	KeyModeTweaked KeyMode = iota
	KeyModeUntweaked
)

func (m KeyMode) String() string {
	switch m {
	case KeyModeTweaked:
		return "tweaked"
	case KeyModeUntweaked:
		return "untweaked"
	default:
		return "unknown"
	}
}

func ParseKeyMode(mode string) (KeyMode, error) {
	switch mode {
	case "tweaked", "":
		return KeyModeTweaked, nil
	case "untweaked":
		return KeyModeUntweaked, nil
	default:
		return 0, fmt.Errorf("unknown key mode %q", mode)
	}
}

// AllClients requires an approval from every client pubkey.
const AllClients = -1

// Policy holds the locally configured rules used to evaluate a negotiation.
type Policy struct {
	KeyMode KeyMode
	// ClientQuorum is the number of distinct client approvals required.
	// AllClients (or any negative value) requires all of them.
	ClientQuorum int
}

func DefaultPolicy() Policy {
	return Policy{KeyMode: KeyModeTweaked, ClientQuorum: AllClients}
}

func (p Policy) RequiredClients(terms contract.UnsignedContract) int {
	if p.ClientQuorum < 0 || p.ClientQuorum > len(terms.ClientPubkeys) {
		return len(terms.ClientPubkeys)
	}
	return p.ClientQuorum
}

// QuorumStatus counts distinct verified approvals per role. A key listed
// both as arbitrator and client counts for both.
type QuorumStatus struct {
	ArbitratorApprovals int
	ArbitratorsRequired int
	ClientApprovals     int
	ClientsRequired     int
}

func (q QuorumStatus) Reached() bool {
	return q.ArbitratorApprovals >= q.ArbitratorsRequired &&
		q.ClientApprovals >= q.ClientsRequired
}

func (q QuorumStatus) String() string {
	return fmt.Sprintf(
		"arbitrators %d/%d, clients %d/%d",
		q.ArbitratorApprovals, q.ArbitratorsRequired,
		q.ClientApprovals, q.ClientsRequired,
	)
}
