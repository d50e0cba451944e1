package inmemoryrelay_test

import (
	"context"
	"testing"
	"time"

	"github.com/ark-network/pls/internal/core/ports"
	inmemoryrelay "github.com/ark-network/pls/internal/infrastructure/relay/inmemory"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRelayClient(t *testing.T) {
	defer goleak.VerifyNone(t)

	alice, err := identity.Generate()
	require.NoError(t, err)
	bob, err := identity.Generate()
	require.NoError(t, err)

	bus := inmemoryrelay.NewBus("")
	relay := inmemoryrelay.NewRelayClient(bus)
	defer relay.Close()

	require.Equal(t, []string{"inmemory"}, relay.Relays())

	builder := protocol.NewBuilder(alice)
	early, err := builder.DirectMessage(bob.PubKey(), "early")
	require.NoError(t, err)
	report, err := relay.Publish(context.Background(), early)
	require.NoError(t, err)
	require.True(t, report.Delivered())

	ctx, cancel := context.WithCancel(context.Background())
	events, err := relay.Subscribe(ctx, protocol.Filters(bob.PubKey(), 0))
	require.NoError(t, err)

	received := next(t, events)
	require.Equal(t, early.ID(), received.ID())

	// Not addressed to bob.
	other, err := builder.DirectMessage(alice.PubKey(), "self")
	require.NoError(t, err)
	_, err = relay.Publish(context.Background(), other)
	require.NoError(t, err)

	tampered := early.Event()
	tampered.Content = "tampered"
	require.NoError(t, bus.Inject(tampered))

	late, err := builder.DirectMessage(bob.PubKey(), "late")
	require.NoError(t, err)
	_, err = relay.Publish(context.Background(), late)
	require.NoError(t, err)

	received = next(t, events)
	require.Equal(t, late.ID(), received.ID())
	require.Len(t, bus.History(), 4)

	cancel()
	_, ok := <-events
	require.False(t, ok)
}

func TestRelayOffline(t *testing.T) {
	defer goleak.VerifyNone(t)

	alice, err := identity.Generate()
	require.NoError(t, err)

	bus := inmemoryrelay.NewBus("test")
	relay := inmemoryrelay.NewRelayClient(bus)
	defer relay.Close()

	event, err := protocol.NewBuilder(alice).DirectMessage(alice.PubKey(), "hello")
	require.NoError(t, err)

	bus.SetOffline(true)
	report, err := relay.Publish(context.Background(), event)
	require.ErrorIs(t, err, ports.ErrDeliveryTimeout)
	require.NotNil(t, report)
	require.False(t, report.Delivered())
	require.Empty(t, bus.History())

	bus.SetOffline(false)
	report, err = relay.Publish(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, 1, report.Acked())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)

	relay := inmemoryrelay.NewRelayClient(inmemoryrelay.NewBus(""))
	events, err := relay.Subscribe(context.Background(), nostr.Filters{{Kinds: protocol.Kinds()}})
	require.NoError(t, err)

	relay.Close()
	_, ok := <-events
	require.False(t, ok)

	_, err = relay.Subscribe(context.Background(), nostr.Filters{})
	require.Error(t, err)
}

func next(t *testing.T, events <-chan protocol.VerifiedEvent) protocol.VerifiedEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok)
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.VerifiedEvent{}
}
