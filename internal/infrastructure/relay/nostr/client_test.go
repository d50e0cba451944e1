package nostrrelay_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ark-network/pls/internal/core/ports"
	nostrrelay "github.com/ark-network/pls/internal/infrastructure/relay/nostr"
	"github.com/ark-network/pls/pkg/identity"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	relay1 = "wss://relay1.example.com"
	relay2 = "wss://relay2.example.com"
	relay3 = "wss://relay3.example.com"
)

func TestNewRelayClient(t *testing.T) {
	fixtures := []struct {
		name string
		urls []string
	}{
		{"no relays", nil},
		{"invalid scheme", []string{"https://relay.example.com"}},
		{"not an url", []string{"relay"}},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			client, err := nostrrelay.NewRelayClient(f.urls)
			require.Error(t, err)
			require.Nil(t, client)
		})
	}

	client, err := nostrrelay.NewRelayClient([]string{relay1, relay2, relay1})
	require.NoError(t, err)
	defer client.Close()
	require.Equal(t, []string{relay1, relay2}, client.Relays())

	_, err = nostrrelay.NewRelayClient(
		[]string{relay1}, nostrrelay.WithResubscribeMargin(-time.Second),
	)
	require.Error(t, err)
}

func TestPublish(t *testing.T) {
	defer goleak.VerifyNone(t)

	event := newEvent(t)

	t.Run("partial delivery", func(t *testing.T) {
		conn1 := newMockedConn(make(chan struct{}))
		conn1.On("Publish", mock.Anything, mock.Anything).Return(nil)
		conn2 := newMockedConn(make(chan struct{}))
		conn2.On("Publish", mock.Anything, mock.Anything).Return(fmt.Errorf("blocked: not allowed"))

		client, err := nostrrelay.NewRelayClient(
			[]string{relay1, relay2, relay3},
			nostrrelay.WithDialer(dialer(map[string]nostrrelay.Conn{relay1: conn1, relay2: conn2})),
		)
		require.NoError(t, err)
		defer client.Close()

		report, err := client.Publish(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, event.ID(), report.EventId)
		require.Equal(t, 1, report.Acked())
		require.Len(t, report.Results, 3)
		require.NoError(t, report.Results[0].Err)
		require.Error(t, report.Results[1].Err)
		require.Error(t, report.Results[2].Err)

		conn1.AssertCalled(t, "Publish", mock.Anything, event.Event())
	})

	t.Run("no relay acknowledges", func(t *testing.T) {
		conn := newMockedConn(make(chan struct{}))
		conn.On("Publish", mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

		client, err := nostrrelay.NewRelayClient(
			[]string{relay1, relay2},
			nostrrelay.WithDialer(dialer(map[string]nostrrelay.Conn{relay1: conn})),
		)
		require.NoError(t, err)
		defer client.Close()

		report, err := client.Publish(context.Background(), event)
		require.ErrorIs(t, err, ports.ErrDeliveryTimeout)
		require.NotNil(t, report)
		require.False(t, report.Delivered())
	})
}

func TestSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newEvent(t), newEvent(t)
	tampered := first.Event()
	tampered.Content = "tampered"

	done1 := make(chan struct{})
	events1 := make(chan *nostr.Event)
	conn1 := newMockedConn(done1)
	conn1.On("Subscribe", mock.Anything, mock.Anything).
		Return((<-chan *nostr.Event)(events1), nil).Once()

	resubscribed := make(chan nostr.Filters, 1)
	events2 := make(chan *nostr.Event)
	conn2 := newMockedConn(make(chan struct{}))
	conn2.On("Subscribe", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			resubscribed <- args.Get(1).(nostr.Filters)
		}).
		Return((<-chan *nostr.Event)(events2), nil).Once()

	var dials atomic.Int32
	registry := prometheus.NewRegistry()
	client, err := nostrrelay.NewRelayClient(
		[]string{relay1},
		nostrrelay.WithRegisterer(registry),
		nostrrelay.WithReconnectBackoff(10*time.Millisecond, 50*time.Millisecond),
		nostrrelay.WithResubscribeMargin(time.Minute),
		nostrrelay.WithDialer(func(_ context.Context, _ string) (nostrrelay.Conn, error) {
			if dials.Add(1) == 1 {
				return conn1, nil
			}
			return conn2, nil
		}),
	)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filters := protocol.Filters(first.PubKey(), 0)
	out, err := client.Subscribe(ctx, filters)
	require.NoError(t, err)

	ev := first.Event()
	events1 <- &ev
	require.Equal(t, first.ID(), next(t, out).ID())

	events1 <- &tampered
	close(done1)

	var refreshed nostr.Filters
	select {
	case refreshed = <-resubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resubscription")
	}
	require.Len(t, refreshed, 1)
	require.NotNil(t, refreshed[0].Since)
	// Events backdated by their authors are requested again.
	require.Equal(t, first.CreatedAt()-60, *refreshed[0].Since)

	ev = second.Event()
	events2 <- &ev
	require.Equal(t, second.ID(), next(t, out).ID())

	cancel()
	_, ok := <-out
	require.False(t, ok)

	require.Equal(t, 1.0, counterValue(t, registry, "pls_relay_dropped_events_total"))
	require.Equal(t, 2.0, counterValue(t, registry, "pls_relay_received_events_total"))
	require.Equal(t, int32(2), dials.Load())
	conn1.AssertCalled(t, "Close")
}

func dialer(conns map[string]nostrrelay.Conn) nostrrelay.Dialer {
	return func(_ context.Context, url string) (nostrrelay.Conn, error) {
		conn, ok := conns[url]
		if !ok {
			return nil, fmt.Errorf("connection refused")
		}
		return conn, nil
	}
}

func newEvent(t *testing.T) protocol.VerifiedEvent {
	id, err := identity.Generate()
	require.NoError(t, err)
	event, err := protocol.NewBuilder(id).DirectMessage(id.PubKey(), "hello")
	require.NoError(t, err)
	return event
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

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
