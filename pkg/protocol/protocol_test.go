package protocol_test

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ark-network/pls/pkg/contract"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/ark-network/pls/pkg/signature"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

var (
	fileHash = strings.Repeat("ab", 32)
	now      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func newIdentity(t *testing.T) *identity.Identity {
	id, err := identity.Generate()
	require.NoError(t, err)
	return id
}

func newBuilder(t *testing.T, id *identity.Identity) *protocol.Builder {
	return protocol.NewBuilder(id, protocol.WithClock(&fixedClock{now}))
}

func newTerms(arbitrators []string, clients []string) contract.UnsignedContract {
	return contract.UnsignedContract{
		Network:           "bitcoin_testnet",
		FileHash:          fileHash,
		ArbitratorPubkeys: arbitrators,
		ArbitratorsQuorum: 1,
		ClientPubkeys:     clients,
	}
}

// signRaw signs an arbitrary event with id, bypassing the builder checks.
func signRaw(t *testing.T, id *identity.Identity, kind int, tags nostr.Tags, content string) protocol.VerifiedEvent {
	event := nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Timestamp(now.Unix()),
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, id.SignEvent(&event))
	verified, err := protocol.Verify(event)
	require.NoError(t, err)
	return verified
}

func TestVerify(t *testing.T) {
	maker := newIdentity(t)
	arbitrator := newIdentity(t)
	client := newIdentity(t)

	verified, err := newBuilder(t, maker).ContractRequest(
		newTerms([]string{arbitrator.PubKey()}, []string{client.PubKey()}),
	)
	require.NoError(t, err)
	require.False(t, verified.IsZero())
	require.Equal(t, maker.PubKey(), verified.PubKey())

	event := verified.Event()
	again, err := protocol.Verify(event)
	require.NoError(t, err)
	require.Equal(t, verified.ID(), again.ID())

	fixtures := []struct {
		name   string
		mutate func(e *nostr.Event)
	}{
		{"content", func(e *nostr.Event) { e.Content = e.Content + " " }},
		{"created at", func(e *nostr.Event) { e.CreatedAt++ }},
		{"tags", func(e *nostr.Event) { e.Tags = append(e.Tags, nostr.Tag{"p", maker.PubKey()}) }},
		{"pubkey", func(e *nostr.Event) { e.PubKey = arbitrator.PubKey() }},
		{"id", func(e *nostr.Event) { e.ID = strings.Repeat("00", 32) }},
		{"signature", func(e *nostr.Event) { e.Sig = strings.Repeat("00", 64) }},
		{"unsigned", func(e *nostr.Event) { e.Sig = "" }},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			tampered := verified.Event()
			f.mutate(&tampered)
			_, err := protocol.Verify(tampered)
			require.ErrorIs(t, err, protocol.ErrInvalidEvent)
		})
	}

	_, err = protocol.Decode(protocol.VerifiedEvent{})
	require.ErrorIs(t, err, protocol.ErrInvalidEvent)
}

func TestBuilder(t *testing.T) {
	id := newIdentity(t)

	t.Run("default skew", func(t *testing.T) {
		builder := newBuilder(t, id)
		require.Equal(t, nostr.Timestamp(now.Add(-2*time.Minute).Unix()), builder.Timestamp())
	})

	t.Run("custom skew", func(t *testing.T) {
		builder := protocol.NewBuilder(
			id, protocol.WithClock(&fixedClock{now}), protocol.WithSkewMargin(0),
		)
		require.Equal(t, nostr.Timestamp(now.Unix()), builder.Timestamp())

		event, err := builder.DirectMessage(newIdentity(t).PubKey(), "hi")
		require.NoError(t, err)
		require.Equal(t, nostr.Timestamp(now.Unix()), event.CreatedAt())
	})

	t.Run("invalid terms", func(t *testing.T) {
		_, err := newBuilder(t, id).ContractRequest(newTerms(nil, []string{id.PubKey()}))
		require.ErrorIs(t, err, contract.ErrSchemaValidationFailed)
	})
}

type recordingHandler struct {
	requests  []protocol.ContractRequest
	approvals []protocol.ContractApproval
	messages  []protocol.DirectMessage
}

func (h *recordingHandler) HandleContractRequest(msg protocol.ContractRequest) error {
	h.requests = append(h.requests, msg)
	return nil
}

func (h *recordingHandler) HandleContractApproval(msg protocol.ContractApproval) error {
	h.approvals = append(h.approvals, msg)
	return nil
}

func (h *recordingHandler) HandleDirectMessage(msg protocol.DirectMessage) error {
	h.messages = append(h.messages, msg)
	return nil
}

func TestDecode(t *testing.T) {
	maker := newIdentity(t)
	arbitrator := newIdentity(t)
	client := newIdentity(t)
	terms := newTerms([]string{arbitrator.PubKey()}, []string{client.PubKey()})
	handler := &recordingHandler{}

	requestEvent, err := newBuilder(t, maker).ContractRequest(terms)
	require.NoError(t, err)
	require.ElementsMatch(t, terms.Participants(), requestEvent.TagValues(protocol.PubkeyTag))

	msg, err := protocol.Decode(requestEvent)
	require.NoError(t, err)
	require.NoError(t, msg.Dispatch(handler))
	require.Len(t, handler.requests, 1)

	request := handler.requests[0]
	require.Equal(t, terms, request.Terms)
	require.Equal(t, maker.PubKey(), request.Maker())
	require.Equal(t, requestEvent.ID(), request.Source().ID())

	t.Run("approval", func(t *testing.T) {
		approvalEvent, err := newBuilder(t, arbitrator).ContractApproval(request, true)
		require.NoError(t, err)

		recipients := approvalEvent.TagValues(protocol.PubkeyTag)
		require.Contains(t, recipients, maker.PubKey())
		require.Contains(t, recipients, client.PubKey())
		require.NotContains(t, recipients, arbitrator.PubKey())

		msg, err := protocol.Decode(approvalEvent)
		require.NoError(t, err)
		require.NoError(t, msg.Dispatch(handler))
		require.Len(t, handler.approvals, 1)

		approval := handler.approvals[0]
		require.Equal(t, fileHash, approval.FileHash)
		require.Equal(t, requestEvent.ID(), approval.RequestId)
		require.Equal(t, arbitrator.PubKey(), approval.Signer())

		pubkey, err := hex.DecodeString(approval.Signer())
		require.NoError(t, err)
		require.True(t, signature.VerifyContractTweaked(pubkey, request.Terms, approval.Signature))
	})

	t.Run("direct message", func(t *testing.T) {
		event, err := newBuilder(t, maker).DirectMessage(client.PubKey(), "preimage")
		require.NoError(t, err)
		require.NotEqual(t, "preimage", event.Content())

		msg, err := protocol.Decode(event)
		require.NoError(t, err)
		require.NoError(t, msg.Dispatch(handler))
		require.Len(t, handler.messages, 1)

		dm := handler.messages[0]
		require.Equal(t, client.PubKey(), dm.Recipient)
		require.Equal(t, maker.PubKey(), dm.Sender())

		cipher := protocol.NIP04Cipher{}
		plaintext, err := dm.Decrypt(client, cipher)
		require.NoError(t, err)
		require.Equal(t, "preimage", plaintext)

		plaintext, err = dm.Decrypt(maker, cipher)
		require.NoError(t, err)
		require.Equal(t, "preimage", plaintext)

		_, err = dm.Decrypt(arbitrator, cipher)
		require.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		validApproval := `{"signature":"` + strings.Repeat("00", 64) + `","fileHash":"` + fileHash + `"}`

		fixtures := []struct {
			name    string
			kind    int
			tags    nostr.Tags
			content string
			err     error
		}{
			{
				name:    "unknown kind",
				kind:    1,
				content: "hello",
				err:     protocol.ErrUnknownKind,
			},
			{
				name:    "request not json",
				kind:    protocol.ContractRequestKind,
				content: "{",
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "request unknown field",
				kind:    protocol.ContractRequestKind,
				content: strings.Replace(mustJSON(t, terms), "{", `{"extra":1,`, 1),
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "request file hash tag mismatch",
				kind:    protocol.ContractRequestKind,
				tags:    nostr.Tags{{protocol.FileHashTag, strings.Repeat("cd", 32)}},
				content: mustJSON(t, terms),
				err:     contract.ErrHashMismatch,
			},
			{
				name:    "request network tag mismatch",
				kind:    protocol.ContractRequestKind,
				tags:    nostr.Tags{{protocol.NetworkTag, "liquid"}},
				content: mustJSON(t, terms),
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "approval bad signature",
				kind:    protocol.ContractApprovalKind,
				content: `{"signature":"00","fileHash":"` + fileHash + `"}`,
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "approval bad file hash",
				kind:    protocol.ContractApprovalKind,
				content: `{"signature":"` + strings.Repeat("00", 64) + `","fileHash":"ab"}`,
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "approval file hash tag mismatch",
				kind:    protocol.ContractApprovalKind,
				tags:    nostr.Tags{{protocol.FileHashTag, strings.Repeat("cd", 32)}},
				content: validApproval,
				err:     contract.ErrHashMismatch,
			},
			{
				name:    "direct message without recipient",
				kind:    protocol.EncryptedDirectMessageKind,
				content: "abc?iv=abc",
				err:     contract.ErrSchemaValidationFailed,
			},
			{
				name:    "direct message with bad recipient",
				kind:    protocol.EncryptedDirectMessageKind,
				tags:    nostr.Tags{{protocol.PubkeyTag, "00"}},
				content: "abc?iv=abc",
				err:     contract.ErrSchemaValidationFailed,
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				tags := f.tags
				if tags == nil {
					tags = nostr.Tags{}
				}
				event := signRaw(t, maker, f.kind, tags, f.content)
				_, err := protocol.Decode(event)
				require.ErrorIs(t, err, f.err)
			})
		}

		event := signRaw(t, maker, protocol.ContractApprovalKind, nostr.Tags{}, validApproval)
		_, err := protocol.Decode(event)
		require.NoError(t, err)
	})
}

func TestNewest(t *testing.T) {
	id := newIdentity(t)
	clock := &fixedClock{now}
	builder := protocol.NewBuilder(id, protocol.WithClock(clock))

	_, ok := protocol.Newest(nil)
	require.False(t, ok)

	build := func(offset time.Duration, content string) protocol.VerifiedEvent {
		clock.now = now.Add(offset)
		event, err := builder.DirectMessage(id.PubKey(), content)
		require.NoError(t, err)
		return event
	}

	older := build(0, "older")
	newer := build(time.Minute, "newer")
	tie := build(time.Minute, "tie")

	newest, ok := protocol.Newest([]protocol.VerifiedEvent{newer, older})
	require.True(t, ok)
	require.Equal(t, newer.ID(), newest.ID())

	newest, ok = protocol.Newest([]protocol.VerifiedEvent{older, newer, tie})
	require.True(t, ok)
	require.Equal(t, tie.ID(), newest.ID())

	newest, ok = protocol.Newest([]protocol.VerifiedEvent{tie, newer, older})
	require.True(t, ok)
	require.Equal(t, newer.ID(), newest.ID())

	require.True(t, protocol.Replaces(int64(newer.CreatedAt()), int64(older.CreatedAt())))
	require.True(t, protocol.Replaces(int64(tie.CreatedAt()), int64(newer.CreatedAt())))
	require.False(t, protocol.Replaces(int64(older.CreatedAt()), int64(newer.CreatedAt())))

	t.Run("requests", func(t *testing.T) {
		arbitrator := newIdentity(t)
		terms := newTerms([]string{arbitrator.PubKey()}, []string{id.PubKey()})

		requests := make([]protocol.ContractRequest, 0, 2)
		for _, offset := range []time.Duration{time.Hour, 0} {
			clock.now = now.Add(offset)
			event, err := builder.ContractRequest(terms)
			require.NoError(t, err)
			msg, err := protocol.Decode(event)
			require.NoError(t, err)
			requests = append(requests, msg.(protocol.ContractRequest))
		}

		newest, ok := protocol.NewestRequest(requests)
		require.True(t, ok)
		require.Equal(t, requests[0].Source().ID(), newest.Source().ID())
	})
}

func TestDeduper(t *testing.T) {
	id := newIdentity(t)
	builder := newBuilder(t, id)
	deduper := protocol.NewDeduper(2)

	events := make([]protocol.VerifiedEvent, 0, 3)
	for _, content := range []string{"a", "b", "c"} {
		event, err := builder.DirectMessage(id.PubKey(), content)
		require.NoError(t, err)
		events = append(events, event)
	}

	require.False(t, deduper.Has(events[0]))
	require.False(t, deduper.Seen(events[0]))
	require.True(t, deduper.Has(events[0]))
	require.True(t, deduper.Seen(events[0]))
	require.False(t, deduper.Seen(events[1]))
	require.Equal(t, 2, deduper.Len())

	// The oldest entry is evicted once the set is full.
	require.False(t, deduper.Seen(events[2]))
	require.Equal(t, 2, deduper.Len())
	require.True(t, deduper.Seen(events[1]))
	require.False(t, deduper.Seen(events[0]))
}

func TestFilters(t *testing.T) {
	maker := newIdentity(t)
	arbitrator := newIdentity(t)
	outsider := newIdentity(t)
	terms := newTerms([]string{arbitrator.PubKey()}, []string{maker.PubKey()})

	request, err := newBuilder(t, maker).ContractRequest(terms)
	require.NoError(t, err)
	dm, err := newBuilder(t, maker).DirectMessage(arbitrator.PubKey(), "hi")
	require.NoError(t, err)

	filters := protocol.Filters(arbitrator.PubKey(), 0)
	for _, event := range []protocol.VerifiedEvent{request, dm} {
		e := event.Event()
		require.True(t, filters.Match(&e), protocol.KindName(event.Kind()))
	}

	e := request.Event()
	require.False(t, protocol.Filters(outsider.PubKey(), 0).Match(&e))

	future := nostr.Timestamp(now.Add(time.Hour).Unix())
	require.False(t, protocol.Filters(arbitrator.PubKey(), future).Match(&e))
}

func TestNewCipher(t *testing.T) {
	cipher, err := protocol.NewCipher(protocol.NIP04)
	require.NoError(t, err)
	require.Equal(t, protocol.NIP04, cipher.Name())

	_, err = protocol.NewCipher("rot13")
	require.Error(t, err)
}

func mustJSON(t *testing.T, terms contract.UnsignedContract) string {
	buf, err := json.Marshal(terms)
	require.NoError(t, err)
	return string(buf)
}
