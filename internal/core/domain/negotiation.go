package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/ark-network/pls/pkg/signature"
)

var (
	// ErrQuorumNotReached marks a negotiation that is still collecting
	// approvals. It is a pending state, not a failure.
	ErrQuorumNotReached     = errors.New("quorum not reached")
	ErrNotParticipant       = errors.New("signer is not a contract participant")
	ErrNegotiationFinalized = errors.New("negotiation already finalized")
	ErrMakerMismatch        = errors.New("request maker does not match")
	ErrStaleRequest         = errors.New("request is not newer than the current one")
	ErrNegotiationNotFound  = errors.New("negotiation not found")
	// ErrAmbiguousNegotiation is returned when more than one maker requested
	// a contract for the same file and none was picked.
	ErrAmbiguousNegotiation = errors.New("more than one maker requested a contract for the file")
)

const (
	UndefinedStage NegotiationStage = iota
	PendingStage
	FinalizedStage
)

type NegotiationStage int

func (s NegotiationStage) String() string {
	switch s {
	case PendingStage:
		return "PENDING_STAGE"
	case FinalizedStage:
		return "FINALIZED_STAGE"
	default:
		return "UNDEFINED_STAGE"
	}
}

// Approval is a verified signature of a participant over the current terms.
type Approval struct {
	EventId   string
	Signer    string
	Signature string
	Timestamp int64
}

// NegotiationId identifies the negotiation opened by maker about fileHash.
// Requests of different makers for the same file never share a negotiation.
func NegotiationId(fileHash, maker string) (string, error) {
	makerKey, err := keys.XOnlyHex(maker)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", strings.ToLower(fileHash), makerKey), nil
}

// Negotiation collects approvals for the terms of the newest contract
// request of a maker about a file, until quorum is reached.
type Negotiation struct {
	Id               string
	FileHash         string
	RequestId        string
	// PreviousRequests lists the ids of the superseded requests, oldest first.
	PreviousRequests []string
	Maker            string
	Terms            contract.UnsignedContract
	Policy           Policy
	RequestCreatedAt int64
	Approvals        map[string]Approval
	Stage            NegotiationStage
	FinalizedAt      int64
	Version          uint
	changes          []Event
}

func NewNegotiation() *Negotiation {
	return &Negotiation{
		Approvals: make(map[string]Approval),
		changes:   make([]Event, 0),
	}
}

func NewNegotiationFromEvents(events []Event) *Negotiation {
	n := NewNegotiation()

	for _, event := range events {
		n.on(event, true)
	}

	n.changes = append([]Event{}, events...)

	return n
}

// Start opens the negotiation for the given request.
func (n *Negotiation) Start(
	requestId, maker string, terms contract.UnsignedContract, createdAt int64, policy Policy,
) (Event, error) {
	if n.Stage != UndefinedStage {
		return nil, fmt.Errorf("negotiation %s already started", n.Id)
	}
	if len(requestId) <= 0 {
		return nil, fmt.Errorf("missing request id")
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	makerKey, err := keys.XOnlyHex(maker)
	if err != nil {
		return nil, err
	}
	id, err := NegotiationId(terms.FileHash, makerKey)
	if err != nil {
		return nil, err
	}

	event := NegotiationStarted{
		NegotiationEvent: NegotiationEvent{
			Id:   id,
			Type: EventTypeNegotiationStarted,
		},
		RequestId: requestId,
		Maker:     makerKey,
		Terms:     terms,
		Policy:    policy,
		CreatedAt: createdAt,
	}
	n.raise(event)
	return event, nil
}

// Supersede replaces the terms with those of a newer request by the same
// maker, following protocol.Replaces: on equal creation times the request
// received later wins. Requests already seen are stale. Approvals collected
// so far were given to the old terms and are dropped.
func (n *Negotiation) Supersede(
	requestId, maker string, terms contract.UnsignedContract, createdAt int64,
) (Event, error) {
	if n.IsFinalized() {
		return nil, ErrNegotiationFinalized
	}
	if !n.IsPending() {
		return nil, fmt.Errorf("negotiation not started")
	}
	if makerKey, err := keys.XOnlyHex(maker); err != nil || makerKey != n.Maker {
		return nil, ErrMakerMismatch
	}
	if n.KnowsRequest(requestId) || !protocol.Replaces(createdAt, n.RequestCreatedAt) {
		return nil, ErrStaleRequest
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(terms.FileHash, n.FileHash) {
		return nil, fmt.Errorf("request file hash %s does not match %s", terms.FileHash, n.FileHash)
	}

	event := RequestSuperseded{
		NegotiationEvent: NegotiationEvent{Id: n.Id, Type: EventTypeRequestSuperseded},
		RequestId:        requestId,
		Terms:            terms,
		CreatedAt:        createdAt,
	}
	n.raise(event)
	return event, nil
}

// AddApproval verifies sig against the signer key and the current terms and
// records it. A signer already recorded is ignored, so feeding the same
// approval twice leaves the negotiation untouched. When the approval
// completes the quorum the negotiation is finalized.
func (n *Negotiation) AddApproval(
	eventId, signer string, sig []byte, timestamp int64,
) ([]Event, error) {
	if n.IsFinalized() {
		return nil, ErrNegotiationFinalized
	}
	if !n.IsPending() {
		return nil, fmt.Errorf("negotiation not started")
	}

	signerKey, err := keys.XOnlyHex(signer)
	if err != nil {
		return nil, err
	}
	if !n.Terms.IsParticipant(signerKey) {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, signerKey)
	}
	if _, ok := n.Approvals[signerKey]; ok {
		return nil, nil
	}
	if !n.verify(signerKey, sig) {
		return nil, fmt.Errorf(
			"%w: approval of %s for %s", signature.ErrVerificationFailed, signerKey, n.Id,
		)
	}

	events := make([]Event, 0, 2)
	accepted := ApprovalAccepted{
		NegotiationEvent: NegotiationEvent{Id: n.Id, Type: EventTypeApprovalAccepted},
		Approval: Approval{
			EventId:   eventId,
			Signer:    signerKey,
			Signature: hex.EncodeToString(sig),
			Timestamp: timestamp,
		},
	}
	n.raise(accepted)
	events = append(events, accepted)

	if n.Status().Reached() {
		finalized := NegotiationFinalized{
			NegotiationEvent: NegotiationEvent{Id: n.Id, Type: EventTypeNegotiationFinalized},
			Signatures:       n.signatures(),
			Timestamp:        time.Now().Unix(),
		}
		n.raise(finalized)
		events = append(events, finalized)
	}

	return events, nil
}

func (n *Negotiation) Status() QuorumStatus {
	status := QuorumStatus{
		ArbitratorsRequired: n.Terms.ArbitratorsQuorum,
		ClientsRequired:     n.Policy.RequiredClients(n.Terms),
	}
	for signer := range n.Approvals {
		if n.Terms.IsArbitrator(signer) {
			status.ArbitratorApprovals++
		}
		if n.Terms.IsClient(signer) {
			status.ClientApprovals++
		}
	}
	return status
}

// FinalContract returns the signed contract, or ErrQuorumNotReached while
// approvals are still being collected.
func (n *Negotiation) FinalContract() (*contract.Contract, error) {
	if !n.IsFinalized() {
		return nil, fmt.Errorf("%w: %s", ErrQuorumNotReached, n.Status())
	}
	c := contract.NewContract(n.Terms, n.signatures(), n.RequestId)
	return &c, nil
}

// Signers returns the keys of the recorded approvals, sorted.
func (n *Negotiation) Signers() []string {
	signers := make([]string, 0, len(n.Approvals))
	for signer := range n.Approvals {
		signers = append(signers, signer)
	}
	sort.Strings(signers)
	return signers
}

// KnowsRequest reports whether requestId is the current request or one it
// superseded.
func (n *Negotiation) KnowsRequest(requestId string) bool {
	if len(requestId) <= 0 {
		return false
	}
	if requestId == n.RequestId {
		return true
	}
	for _, id := range n.PreviousRequests {
		if id == requestId {
			return true
		}
	}
	return false
}

func (n *Negotiation) HasApproved(pubkey string) bool {
	key, err := keys.XOnlyHex(pubkey)
	if err != nil {
		return false
	}
	_, ok := n.Approvals[key]
	return ok
}

func (n *Negotiation) Events() []Event {
	return n.changes
}

func (n *Negotiation) IsPending() bool {
	return n.Stage == PendingStage
}

func (n *Negotiation) IsFinalized() bool {
	return n.Stage == FinalizedStage
}

func (n *Negotiation) verify(signer string, sig []byte) bool {
	pubkey, err := hex.DecodeString(signer)
	if err != nil {
		return false
	}
	if n.Policy.KeyMode == KeyModeUntweaked {
		return signature.VerifyContract(pubkey, n.Terms, sig)
	}
	return signature.VerifyContractTweaked(pubkey, n.Terms, sig)
}

func (n *Negotiation) signatures() map[string]string {
	sigs := make(map[string]string, len(n.Approvals))
	for signer, approval := range n.Approvals {
		sigs[signer] = approval.Signature
	}
	return sigs
}

func (n *Negotiation) on(event Event, replayed bool) {
	switch e := event.(type) {
	case NegotiationStarted:
		n.Stage = PendingStage
		n.Id = e.Id
		n.FileHash = strings.ToLower(e.Terms.FileHash)
		n.RequestId = e.RequestId
		n.Maker = e.Maker
		n.Terms = e.Terms
		n.Policy = e.Policy
		n.RequestCreatedAt = e.CreatedAt
	case RequestSuperseded:
		n.PreviousRequests = append(n.PreviousRequests, n.RequestId)
		n.RequestId = e.RequestId
		n.Terms = e.Terms
		n.RequestCreatedAt = e.CreatedAt
		n.Approvals = make(map[string]Approval)
	case ApprovalAccepted:
		n.Approvals[e.Approval.Signer] = e.Approval
	case NegotiationFinalized:
		n.Stage = FinalizedStage
		n.FinalizedAt = e.Timestamp
	}

	if replayed {
		n.Version++
	}
}

func (n *Negotiation) raise(event Event) {
	if n.changes == nil {
		n.changes = make([]Event, 0)
	}
	n.changes = append(n.changes, event)
	n.on(event, false)
}
