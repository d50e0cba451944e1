package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/ark-network/pls/pkg/signature"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Message is one of ContractRequest, ContractApproval or DirectMessage.
type Message interface {
	// Source returns the verified event the message was decoded from.
	Source() VerifiedEvent
	// Dispatch calls the handler method matching the concrete message type.
	Dispatch(h Handler) error

	isMessage()
}

// Handler has one method per message type. Adding a message type adds a
// method here, so every handler must deal with it.
type Handler interface {
	HandleContractRequest(msg ContractRequest) error
	HandleContractApproval(msg ContractApproval) error
	HandleDirectMessage(msg DirectMessage) error
}

// ApprovalPayload is the content of a ContractApproval event.
type ApprovalPayload struct {
	Signature string `json:"signature"`
	FileHash  string `json:"fileHash"`
}

// ContractRequest is a maker announcing contract terms to every participant.
type ContractRequest struct {
	event VerifiedEvent
	Terms contract.UnsignedContract
}

func (m ContractRequest) Source() VerifiedEvent { return m.event }

func (m ContractRequest) Dispatch(h Handler) error { return h.HandleContractRequest(m) }

func (ContractRequest) isMessage() {}

func (m ContractRequest) Maker() string {
	return m.event.PubKey()
}

// ContractApproval is a participant's signature over the terms of the request
// with the same file hash.
type ContractApproval struct {
	event     VerifiedEvent
	FileHash  string
	Signature []byte
	// RequestId is the id of the approved request event, if referenced.
	RequestId string
}

func (m ContractApproval) Source() VerifiedEvent { return m.event }

func (m ContractApproval) Dispatch(h Handler) error { return h.HandleContractApproval(m) }

func (ContractApproval) isMessage() {}

func (m ContractApproval) Signer() string {
	return m.event.PubKey()
}

// DirectMessage is an encrypted message addressed to a single recipient.
type DirectMessage struct {
	event      VerifiedEvent
	Recipient  string
	Ciphertext string
}

func (m DirectMessage) Source() VerifiedEvent { return m.event }

func (m DirectMessage) Dispatch(h Handler) error { return h.HandleDirectMessage(m) }

func (DirectMessage) isMessage() {}

func (m DirectMessage) Sender() string {
	return m.event.PubKey()
}

// Decrypt opens the message for id, which may be either the recipient or
// the sender.
func (m DirectMessage) Decrypt(id *identity.Identity, cipher Cipher) (string, error) {
	counterparty := m.Sender()
	if id.PubKey() == m.Sender() {
		counterparty = m.Recipient
	} else if id.PubKey() != m.Recipient {
		return "", fmt.Errorf("message is not addressed to %s", id.PubKey())
	}
	return cipher.Decrypt(m.Ciphertext, id, counterparty)
}

// Decode turns a verified event into its typed message. Malformed payloads
// fail with contract.ErrSchemaValidationFailed.
func Decode(event VerifiedEvent) (Message, error) {
	if event.IsZero() {
		return nil, fmt.Errorf("%w: event was not verified", ErrInvalidEvent)
	}

	switch event.Kind() {
	case ContractRequestKind:
		return decodeRequest(event)
	case ContractApprovalKind:
		return decodeApproval(event)
	case EncryptedDirectMessageKind:
		return decodeDirectMessage(event)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownKind, event.Kind())
	}
}

func decodeRequest(event VerifiedEvent) (Message, error) {
	var terms contract.UnsignedContract
	if err := contract.DecodeStrict([]byte(event.Content()), &terms); err != nil {
		return nil, err
	}
	if fileHash, ok := event.TagValue(FileHashTag); ok && !sameHex(fileHash, terms.FileHash) {
		return nil, hashMismatchErr(fileHash)
	}
	if net, ok := event.TagValue(NetworkTag); ok && net != terms.Network {
		return nil, payloadErr("network tag %s does not match content", net)
	}
	return ContractRequest{event: event, Terms: terms}, nil
}

func decodeApproval(event VerifiedEvent) (Message, error) {
	var payload ApprovalPayload
	if err := contract.DecodeStrict([]byte(event.Content()), &payload); err != nil {
		return nil, err
	}
	if buf, err := hex.DecodeString(payload.FileHash); err != nil || len(buf) != contract.FileHashLen {
		return nil, payloadErr("file hash must be %d hex encoded bytes", contract.FileHashLen)
	}
	sig, err := signature.ParseSignature(payload.Signature)
	if err != nil {
		return nil, payloadErr("%s", err)
	}
	if fileHash, ok := event.TagValue(FileHashTag); ok && !sameHex(fileHash, payload.FileHash) {
		return nil, hashMismatchErr(fileHash)
	}
	requestId, _ := event.TagValue(EventTag)

	return ContractApproval{
		event:     event,
		FileHash:  strings.ToLower(payload.FileHash),
		Signature: sig,
		RequestId: requestId,
	}, nil
}

func decodeDirectMessage(event VerifiedEvent) (Message, error) {
	recipient, ok := event.TagValue(PubkeyTag)
	if !ok {
		return nil, payloadErr("missing recipient tag")
	}
	xonly, err := keys.XOnlyHex(recipient)
	if err != nil {
		return nil, payloadErr("invalid recipient %s", recipient)
	}
	if len(event.Content()) == 0 {
		return nil, payloadErr("empty message")
	}
	return DirectMessage{event: event, Recipient: xonly, Ciphertext: event.Content()}, nil
}

func sameHex(a, b string) bool {
	return strings.EqualFold(a, b)
}

// hashMismatchErr is still a malformed payload, so it wraps both errors.
func hashMismatchErr(tag string) error {
	return fmt.Errorf(
		"%w: %w: file hash tag %s does not match content",
		contract.ErrSchemaValidationFailed, contract.ErrHashMismatch, tag,
	)
}

func payloadErr(format string, args ...any) error {
	return fmt.Errorf(
		"%w: %s", contract.ErrSchemaValidationFailed, fmt.Sprintf(format, args...),
	)
}
