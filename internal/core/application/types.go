package application

import (
	"context"
	"time"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/ark-network/pls/internal/core/ports"
	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
)

type Service interface {
	Start() error
	Stop()
	// ProposeContract announces the terms as a contract request signed by
	// the local identity.
	ProposeContract(ctx context.Context, terms contract.UnsignedContract) (*ports.PublishReport, error)
	// ApproveContract signs the terms the maker requested for fileHash and
	// broadcasts the approval. An empty maker is accepted when exactly one
	// maker requested a contract for the file.
	ApproveContract(ctx context.Context, fileHash, maker string) (*ports.PublishReport, error)
	SendDirectMessage(ctx context.Context, recipient, message string) (*ports.PublishReport, error)
	// HandleEvent is the ingestion gate for events coming from outside the
	// relay subscription. Unsigned or tampered events are rejected.
	HandleEvent(ctx context.Context, event nostr.Event) error
	// GetNegotiation resolves maker like ApproveContract does.
	GetNegotiation(ctx context.Context, fileHash, maker string) (*domain.Negotiation, error)
	ListNegotiations(ctx context.Context) ([]*domain.Negotiation, error)
	GetRequestsChannel(ctx context.Context) <-chan ContractRequest
	GetFinalizedChannel(ctx context.Context) <-chan contract.Contract
	GetDirectMessagesChannel(ctx context.Context) <-chan DirectMessage
	GetInfo(ctx context.Context) ServiceInfo
}

type Config struct {
	Identity             *identity.Identity
	Policy               domain.Policy
	PublishTimeout       time.Duration
	SkewMargin           time.Duration
	SubscriptionLookback time.Duration
	// RepublishInterval in seconds, 0 disables republishing.
	RepublishInterval int64
	Cipher            protocol.Cipher
	// Clock defaults to the system clock.
	Clock protocol.Clock
}

type ServiceInfo struct {
	PubKey       string
	Relays       []string
	KeyMode      string
	ClientQuorum int
	Cipher       string

	// Outbox counts events waiting to be republished.
	Outbox           int
	PendingApprovals int
}

// ContractRequest is a request the local identity takes part in.
type ContractRequest struct {
	RequestId string
	Maker     string
	Terms     contract.UnsignedContract
	CreatedAt int64
}

type DirectMessage struct {
	Id        string
	From      string
	To        string
	Content   string
	CreatedAt int64
}
