package inmemoryrelay

import (
	"context"
	"fmt"
	"sync"

	"github.com/ark-network/pls/internal/core/ports"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBusName = "inmemory"
	queueSize      = 256
)

// Bus is an in-process relay. Every event published is kept and replayed to
// later subscriptions whose filters match it.
type Bus struct {
	name string

	lock        sync.RWMutex
	history     []nostr.Event
	subscribers map[int]*subscriber
	nextId      int
	offline     bool
}

type subscriber struct {
	filters nostr.Filters
	queue   chan nostr.Event
}

func NewBus(name string) *Bus {
	if len(name) <= 0 {
		name = defaultBusName
	}
	return &Bus{
		name:        name,
		history:     make([]nostr.Event, 0),
		subscribers: make(map[int]*subscriber),
	}
}

func (b *Bus) Name() string {
	return b.name
}

// SetOffline makes the bus refuse every publish until set back online.
func (b *Bus) SetOffline(offline bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.offline = offline
}

// History returns a copy of the accepted events in publishing order.
func (b *Bus) History() []nostr.Event {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return append([]nostr.Event{}, b.history...)
}

// Inject stores an event as if a remote peer had published it. Nothing is
// checked, so subscribers may receive forged or tampered events.
func (b *Bus) Inject(event nostr.Event) error {
	return b.publish(event)
}

func (b *Bus) publish(event nostr.Event) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.offline {
		return fmt.Errorf("relay %s is offline", b.name)
	}

	b.history = append(b.history, event)
	for id, sub := range b.subscribers {
		if !sub.filters.Match(&event) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			log.Warnf("subscription %d on relay %s is lagging, dropped event %s", id, b.name, event.ID)
		}
	}
	return nil
}

// subscribe registers the filters and returns the stored events matching
// them. Both happen under the same lock so no event is lost or repeated.
func (b *Bus) subscribe(filters nostr.Filters) (int, *subscriber, []nostr.Event) {
	b.lock.Lock()
	defer b.lock.Unlock()

	backlog := make([]nostr.Event, 0)
	for i := range b.history {
		if filters.Match(&b.history[i]) {
			backlog = append(backlog, b.history[i])
		}
	}

	id := b.nextId
	b.nextId++
	sub := &subscriber{filters: filters, queue: make(chan nostr.Event, queueSize)}
	b.subscribers[id] = sub
	return id, sub, backlog
}

func (b *Bus) unsubscribe(id int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.subscribers, id)
}

type client struct {
	bus *Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRelayClient(bus *Bus) ports.RelayClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{bus: bus, ctx: ctx, cancel: cancel}
}

func (c *client) Publish(
	ctx context.Context, event protocol.VerifiedEvent,
) (*ports.PublishReport, error) {
	report := &ports.PublishReport{EventId: event.ID()}

	err := ctx.Err()
	if err == nil {
		err = c.bus.publish(event.Event())
	}
	report.Results = append(report.Results, ports.PublishResult{Relay: c.bus.name, Err: err})

	if !report.Delivered() {
		return report, fmt.Errorf("%w: %s", ports.ErrDeliveryTimeout, report)
	}
	return report, nil
}

func (c *client) Subscribe(
	ctx context.Context, filters nostr.Filters,
) (<-chan protocol.VerifiedEvent, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, fmt.Errorf("relay client closed")
	}

	id, sub, backlog := c.bus.subscribe(filters)
	events := make(chan protocol.VerifiedEvent)

	ctx, cancel := context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(events)
		defer c.bus.unsubscribe(id)
		defer cancel()

		for _, event := range backlog {
			if !forward(ctx, c.ctx, event, events) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case event := <-sub.queue:
				if !forward(ctx, c.ctx, event, events) {
					return
				}
			}
		}
	}()

	return events, nil
}

func (c *client) Relays() []string {
	return []string{c.bus.name}
}

func (c *client) Close() {
	c.cancel()
	c.wg.Wait()
}

// forward verifies the event and hands it to the subscriber. It returns
// false once either context is done.
func forward(
	ctx, clientCtx context.Context, event nostr.Event, events chan<- protocol.VerifiedEvent,
) bool {
	verified, err := protocol.Verify(event)
	if err != nil {
		log.WithError(err).Debugf("dropped event %s", event.ID)
		return true
	}
	select {
	case events <- verified:
		return true
	case <-ctx.Done():
		return false
	case <-clientCtx.Done():
		return false
	}
}
