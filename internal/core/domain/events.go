package domain

import "github.com/ark-network/pls/pkg/contract"

const NegotiationTopic = "negotiation"

type EventType int

const (
	EventTypeUndefined EventType = iota
	EventTypeNegotiationStarted
	EventTypeRequestSuperseded
	EventTypeApprovalAccepted
	EventTypeNegotiationFinalized
)

func (t EventType) String() string {
	switch t {
	case EventTypeNegotiationStarted:
		return "NEGOTIATION_STARTED"
	case EventTypeRequestSuperseded:
		return "REQUEST_SUPERSEDED"
	case EventTypeApprovalAccepted:
		return "APPROVAL_ACCEPTED"
	case EventTypeNegotiationFinalized:
		return "NEGOTIATION_FINALIZED"
	default:
		return "UNDEFINED"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
}

// NegotiationEvent is embedded in every negotiation event. Id is the
// negotiation id, see NegotiationId.
type NegotiationEvent struct {
	Id   string
	Type EventType
}

func (e NegotiationEvent) GetTopic() string   { return NegotiationTopic }
func (e NegotiationEvent) GetType() EventType { return e.Type }

type NegotiationStarted struct {
	NegotiationEvent
	RequestId string
	Maker     string
	Terms     contract.UnsignedContract
	Policy    Policy
	CreatedAt int64
}

type RequestSuperseded struct {
	NegotiationEvent
	RequestId string
	Terms     contract.UnsignedContract
	CreatedAt int64
}

type ApprovalAccepted struct {
	NegotiationEvent
	Approval Approval
}

type NegotiationFinalized struct {
	NegotiationEvent
	Signatures map[string]string
	Timestamp  int64
}
