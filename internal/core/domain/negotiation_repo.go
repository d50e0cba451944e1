package domain

import "context"

type NegotiationRepository interface {
	// Save appends events to the negotiation's history and returns the
	// resulting state.
	Save(ctx context.Context, id string, events ...Event) (*Negotiation, error)
	// Load fails with ErrNegotiationNotFound for unknown ids.
	Load(ctx context.Context, id string) (*Negotiation, error)
	List(ctx context.Context) ([]*Negotiation, error)
	// FindByFileHash returns the negotiations of every maker about fileHash.
	FindByFileHash(ctx context.Context, fileHash string) ([]*Negotiation, error)
	RegisterEventsHandler(handler func(negotiation *Negotiation))
	Close()
}
