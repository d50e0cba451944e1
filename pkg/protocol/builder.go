package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/keys"
	"github.com/nbd-wtf/go-nostr"
)

// DefaultSkewMargin is subtracted from the local clock when stamping events,
// so that observers whose clock is slightly behind still accept them.
const DefaultSkewMargin = 2 * time.Minute

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Builder creates events signed by a given identity.
type Builder struct {
	id     *identity.Identity
	clock  Clock
	skew   time.Duration
	cipher Cipher
}

type BuilderOption func(*Builder)

func WithClock(clock Clock) BuilderOption {
	return func(b *Builder) { b.clock = clock }
}

func WithSkewMargin(margin time.Duration) BuilderOption {
	return func(b *Builder) { b.skew = margin }
}

func WithCipher(cipher Cipher) BuilderOption {
	return func(b *Builder) { b.cipher = cipher }
}

func NewBuilder(id *identity.Identity, opts ...BuilderOption) *Builder {
	b := &Builder{
		id:     id,
		clock:  systemClock{},
		skew:   DefaultSkewMargin,
		cipher: NIP04Cipher{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Identity() *identity.Identity {
	return b.id
}

func (b *Builder) Cipher() Cipher {
	return b.cipher
}

// Timestamp returns the creation time to stamp on new events.
func (b *Builder) Timestamp() nostr.Timestamp {
	return nostr.Timestamp(b.clock.Now().Add(-b.skew).Unix())
}

// ContractRequest announces the terms, tagging every participant.
func (b *Builder) ContractRequest(terms contract.UnsignedContract) (VerifiedEvent, error) {
	if err := terms.Validate(); err != nil {
		return VerifiedEvent{}, err
	}
	content, err := json.Marshal(terms)
	if err != nil {
		return VerifiedEvent{}, err
	}

	tags := nostr.Tags{
		{FileHashTag, terms.FileHash},
		{NetworkTag, terms.Network},
	}
	for _, pubkey := range terms.Participants() {
		tags = append(tags, nostr.Tag{PubkeyTag, pubkey})
	}

	return b.finalize(ContractRequestKind, tags, string(content))
}

// ContractApproval signs the terms of the given request and wraps the
// signature in an approval event addressed to the maker and every other
// participant.
func (b *Builder) ContractApproval(request ContractRequest, tweaked bool) (VerifiedEvent, error) {
	sig, err := b.id.SignContract(request.Terms, tweaked)
	if err != nil {
		return VerifiedEvent{}, err
	}
	recipients := append([]string{request.Maker()}, request.Terms.Participants()...)
	return b.ApprovalWithSignature(
		request.Terms.FileHash, sig, request.Source().ID(), recipients,
	)
}

// ApprovalWithSignature wraps an already computed signature. requestId and
// recipients are optional.
func (b *Builder) ApprovalWithSignature(
	fileHash string, sig []byte, requestId string, recipients []string,
) (VerifiedEvent, error) {
	content, err := json.Marshal(ApprovalPayload{
		Signature: hex.EncodeToString(sig),
		FileHash:  fileHash,
	})
	if err != nil {
		return VerifiedEvent{}, err
	}

	tags := nostr.Tags{{FileHashTag, fileHash}}
	if len(requestId) > 0 {
		tags = append(tags, nostr.Tag{EventTag, requestId})
	}
	seen := make(map[string]struct{})
	for _, pubkey := range recipients {
		if _, ok := seen[pubkey]; ok || pubkey == b.id.PubKey() {
			continue
		}
		seen[pubkey] = struct{}{}
		tags = append(tags, nostr.Tag{PubkeyTag, pubkey})
	}

	return b.finalize(ContractApprovalKind, tags, string(content))
}

// DirectMessage encrypts plaintext for the recipient.
func (b *Builder) DirectMessage(recipient, plaintext string) (VerifiedEvent, error) {
	xonly, err := keys.XOnlyHex(recipient)
	if err != nil {
		return VerifiedEvent{}, err
	}
	ciphertext, err := b.cipher.Encrypt(plaintext, b.id, xonly)
	if err != nil {
		return VerifiedEvent{}, err
	}
	return b.finalize(
		EncryptedDirectMessageKind, nostr.Tags{{PubkeyTag, xonly}}, ciphertext,
	)
}

func (b *Builder) finalize(kind int, tags nostr.Tags, content string) (VerifiedEvent, error) {
	event := nostr.Event{
		Kind:      kind,
		CreatedAt: b.Timestamp(),
		Tags:      tags,
		Content:   content,
	}
	if err := b.id.SignEvent(&event); err != nil {
		return VerifiedEvent{}, err
	}
	verified, err := Verify(event)
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("failed to finalize event: %w", err)
	}
	return verified, nil
}
