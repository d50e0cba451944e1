package protocol

import (
	"errors"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

var ErrInvalidEvent = errors.New("invalid event")

// VerifiedEvent is an event whose id and signature have been checked against
// its pubkey. The only way to obtain a non-zero value is Verify, so holding
// one is proof that the claimed author signed it.
type VerifiedEvent struct {
	event nostr.Event
}

func Verify(event nostr.Event) (VerifiedEvent, error) {
	if len(event.ID) == 0 || len(event.Sig) == 0 {
		return VerifiedEvent{}, fmt.Errorf("%w: missing id or signature", ErrInvalidEvent)
	}
	if event.ID != event.GetID() {
		return VerifiedEvent{}, fmt.Errorf("%w: id does not match content", ErrInvalidEvent)
	}
	ok, err := event.CheckSignature()
	if err != nil {
		return VerifiedEvent{}, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	if !ok {
		return VerifiedEvent{}, fmt.Errorf("%w: signature verification failed", ErrInvalidEvent)
	}
	return VerifiedEvent{event}, nil
}

func (e VerifiedEvent) IsZero() bool {
	return len(e.event.ID) == 0
}

// Event returns a copy of the underlying event.
func (e VerifiedEvent) Event() nostr.Event {
	event := e.event
	event.Tags = append(nostr.Tags{}, e.event.Tags...)
	return event
}

func (e VerifiedEvent) ID() string {
	return e.event.ID
}

func (e VerifiedEvent) PubKey() string {
	return e.event.PubKey
}

func (e VerifiedEvent) Kind() int {
	return e.event.Kind
}

func (e VerifiedEvent) CreatedAt() nostr.Timestamp {
	return e.event.CreatedAt
}

func (e VerifiedEvent) Content() string {
	return e.event.Content
}

func (e VerifiedEvent) Sig() string {
	return e.event.Sig
}

// TagValue returns the value of the first tag with the given name.
func (e VerifiedEvent) TagValue(name string) (string, bool) {
	for _, tag := range e.event.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

// TagValues returns the values of all tags with the given name.
func (e VerifiedEvent) TagValues(name string) []string {
	values := make([]string, 0)
	for _, tag := range e.event.Tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}
