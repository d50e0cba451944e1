package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ark-network/pls/pkg/protocol"
	"github.com/nbd-wtf/go-nostr"
)

// ErrDeliveryTimeout is returned when no relay acknowledged an event in time.
// The event stays signed and may still show up later.
var ErrDeliveryTimeout = errors.New("delivery timeout")

// PublishResult is the outcome of publishing to a single relay. A nil Err
// means the relay acknowledged the event.
type PublishResult struct {
	Relay string
	Err   error
}

type PublishReport struct {
	EventId string
	Results []PublishResult
}

func (r PublishReport) Acked() int {
	count := 0
	for _, res := range r.Results {
		if res.Err == nil {
			count++
		}
	}
	return count
}

func (r PublishReport) Delivered() bool {
	return r.Acked() > 0
}

func (r PublishReport) String() string {
	return fmt.Sprintf("event %s acked by %d/%d relays", r.EventId, r.Acked(), len(r.Results))
}

type RelayClient interface {
	// Publish sends the event to every relay and waits for their answers
	// until ctx is done. It returns ErrDeliveryTimeout, together with the
	// report, when none acknowledged.
	Publish(ctx context.Context, event protocol.VerifiedEvent) (*PublishReport, error)
	// Subscribe streams events matching filters until ctx is done, then
	// closes the channel. Events failing verification are dropped.
	Subscribe(ctx context.Context, filters nostr.Filters) (<-chan protocol.VerifiedEvent, error)
	Relays() []string
	Close()
}
