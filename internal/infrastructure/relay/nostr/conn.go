package nostrrelay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Conn is a live connection to a single relay.
type Conn interface {
	// Publish returns once the relay acknowledged or refused the event.
	Publish(ctx context.Context, event nostr.Event) error
	// Subscribe streams the stored and live events matching filters until
	// ctx is done or the connection drops.
	Subscribe(ctx context.Context, filters nostr.Filters) (<-chan *nostr.Event, error)
	// Done is closed when the connection is lost.
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a connection to the relay at url.
type Dialer func(ctx context.Context, url string) (Conn, error)

type relayConn struct {
	relay *nostr.Relay
}

func dialRelay(ctx context.Context, url string) (Conn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &relayConn{relay}, nil
}

func (c *relayConn) Publish(ctx context.Context, event nostr.Event) error {
	return c.relay.Publish(ctx, event)
}

func (c *relayConn) Subscribe(
	ctx context.Context, filters nostr.Filters,
) (<-chan *nostr.Event, error) {
	sub, err := c.relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, err
	}
	return sub.Events, nil
}

func (c *relayConn) Done() <-chan struct{} {
	return c.relay.Context().Done()
}

func (c *relayConn) Close() error {
	return c.relay.Close()
}
