package nostrrelay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/pls/internal/core/ports"
	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = time.Minute
)

type Option func(*relayClient)

func WithDialer(dialer Dialer) Option {
	return func(c *relayClient) {
		c.dial = dialer
	}
}

// WithRegisterer exposes the relay metrics through registry.
func WithRegisterer(registry prometheus.Registerer) Option {
	return func(c *relayClient) {
		c.registry = registry
	}
}

// WithResubscribeMargin sets how far before the last received event a
// subscription resumes after a reconnection. Peers backdate their events by
// their clock skew margin, so a smaller value may skip events.
func WithResubscribeMargin(margin time.Duration) Option {
	return func(c *relayClient) {
		c.resubscribeMargin = margin
	}
}

func WithReconnectBackoff(min, max time.Duration) Option {
	return func(c *relayClient) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

type relayClient struct {
	urls       []string
	dial       Dialer
	registry   prometheus.Registerer
	metrics    *relayMetrics
	minBackoff time.Duration
	maxBackoff time.Duration

	resubscribeMargin time.Duration

	lock  sync.Mutex
	conns map[string]Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelayClient returns a client that publishes to and subscribes from all
// the given relays. Connections are opened lazily and reopened when lost.
func NewRelayClient(urls []string, opts ...Option) (ports.RelayClient, error) {
	if len(urls) <= 0 {
		return nil, fmt.Errorf("missing relays")
	}

	normalized := make([]string, 0, len(urls))
	seen := make(map[string]struct{})
	for _, url := range urls {
		if !nostr.IsValidRelayURL(url) {
			return nil, fmt.Errorf("invalid relay url: %s", url)
		}
		url = nostr.NormalizeURL(url)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		normalized = append(normalized, url)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &relayClient{
		urls:       normalized,
		dial:       dialRelay,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		conns:      make(map[string]Conn),
		ctx:        ctx,
		cancel:     cancel,

		resubscribeMargin: protocol.DefaultSkewMargin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minBackoff <= 0 || c.maxBackoff < c.minBackoff {
		cancel()
		return nil, fmt.Errorf("invalid reconnect backoff")
	}
	if c.resubscribeMargin < 0 {
		cancel()
		return nil, fmt.Errorf("invalid resubscribe margin")
	}
	c.metrics = newRelayMetrics(c.registry)
	return c, nil
}

func (c *relayClient) Publish(
	ctx context.Context, event protocol.VerifiedEvent,
) (*ports.PublishReport, error) {
	ev := event.Event()
	results := make([]ports.PublishResult, len(c.urls))

	wg := &sync.WaitGroup{}
	for i, url := range c.urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()

			err := c.publishTo(ctx, url, ev)
			result := "ack"
			if err != nil {
				result = "error"
				log.WithError(err).Debugf("relay %s did not accept event %s", url, ev.ID)
			}
			c.metrics.published.WithLabelValues(url, result).Inc()
			results[i] = ports.PublishResult{Relay: url, Err: err}
		}(i, url)
	}
	wg.Wait()

	report := &ports.PublishReport{EventId: ev.ID, Results: results}
	if !report.Delivered() {
		return report, fmt.Errorf("%w: %s", ports.ErrDeliveryTimeout, report)
	}
	return report, nil
}

func (c *relayClient) Subscribe(
	ctx context.Context, filters nostr.Filters,
) (<-chan protocol.VerifiedEvent, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, fmt.Errorf("relay client closed")
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan protocol.VerifiedEvent)

	wg := &sync.WaitGroup{}
	for _, url := range c.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			c.subscribeLoop(ctx, url, filters, events)
		}(url)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(events)
		defer cancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			return
		case <-c.ctx.Done():
			cancel()
			<-done
		}
	}()

	return events, nil
}

func (c *relayClient) Relays() []string {
	return append([]string{}, c.urls...)
}

func (c *relayClient) Close() {
	c.cancel()
	c.wg.Wait()

	c.lock.Lock()
	defer c.lock.Unlock()
	for url, conn := range c.conns {
		if err := conn.Close(); err != nil {
			log.WithError(err).Debugf("failed to close connection to relay %s", url)
		}
		delete(c.conns, url)
		c.metrics.connected.Dec()
	}
}

func (c *relayClient) publishTo(ctx context.Context, url string, event nostr.Event) error {
	conn, err := c.getConn(ctx, url)
	if err != nil {
		return err
	}
	if err := conn.Publish(ctx, event); err != nil {
		c.dropIfLost(url, conn)
		return err
	}
	return nil
}

// subscribeLoop keeps a subscription open on the relay at url until ctx is
// done, reconnecting with exponential backoff. After a reconnection only
// events created after the last one received, minus the resubscribe margin,
// are requested again.
func (c *relayClient) subscribeLoop(
	ctx context.Context, url string, filters nostr.Filters,
	out chan<- protocol.VerifiedEvent,
) {
	backoff := c.minBackoff
	var latest nostr.Timestamp

	for {
		since := resumeFrom(latest, c.resubscribeMargin)
		err := c.subscribeOnce(ctx, url, withSince(filters, since), out, &latest)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff = c.minBackoff
			err = fmt.Errorf("connection lost")
		}

		c.metrics.reconnects.WithLabelValues(url).Inc()
		log.WithError(err).Debugf("subscription to relay %s interrupted, retrying in %s", url, backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}
}

// subscribeOnce returns nil when an established subscription ends, or the
// error that prevented establishing it.
func (c *relayClient) subscribeOnce(
	ctx context.Context, url string, filters nostr.Filters,
	out chan<- protocol.VerifiedEvent, latest *nostr.Timestamp,
) error {
	conn, err := c.getConn(ctx, url)
	if err != nil {
		return err
	}
	events, err := conn.Subscribe(ctx, filters)
	if err != nil {
		c.dropIfLost(url, conn)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			c.dropIfLost(url, conn)
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event == nil {
				continue
			}

			verified, err := protocol.Verify(*event)
			if err != nil {
				c.metrics.dropped.WithLabelValues(url).Inc()
				log.WithError(err).Debugf("dropped event %s from relay %s", event.ID, url)
				continue
			}
			c.metrics.received.WithLabelValues(url).Inc()
			if verified.CreatedAt() > *latest {
				*latest = verified.CreatedAt()
			}

			select {
			case out <- verified:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *relayClient) getConn(ctx context.Context, url string) (Conn, error) {
	c.lock.Lock()
	conn, ok := c.conns[url]
	c.lock.Unlock()
	if ok && !isClosed(conn.Done()) {
		return conn, nil
	}
	if ok {
		c.dropIfLost(url, conn)
	}

	newConn, err := c.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay %s: %w", url, err)
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.ctx.Err() != nil {
		//nolint:all
		newConn.Close()
		return nil, fmt.Errorf("relay client closed")
	}
	if conn, ok := c.conns[url]; ok && !isClosed(conn.Done()) {
		//nolint:all
		newConn.Close()
		return conn, nil
	}
	c.conns[url] = newConn
	c.metrics.connected.Inc()
	log.Debugf("connected to relay %s", url)
	return newConn, nil
}

// dropIfLost forgets conn if the connection is gone, so that the next use
// dials again.
func (c *relayClient) dropIfLost(url string, conn Conn) {
	if !isClosed(conn.Done()) {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if current, ok := c.conns[url]; ok && current == conn {
		delete(c.conns, url)
		c.metrics.connected.Dec()
		//nolint:all
		conn.Close()
	}
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func resumeFrom(latest nostr.Timestamp, margin time.Duration) nostr.Timestamp {
	if latest <= 0 {
		return 0
	}
	since := latest - nostr.Timestamp(margin/time.Second)
	if since <= 0 {
		return 1
	}
	return since
}

func withSince(filters nostr.Filters, since nostr.Timestamp) nostr.Filters {
	if since <= 0 {
		return filters
	}
	updated := make(nostr.Filters, 0, len(filters))
	for _, filter := range filters {
		if filter.Since == nil || *filter.Since < since {
			s := since
			filter.Since = &s
		}
		updated = append(updated, filter)
	}
	return updated
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
