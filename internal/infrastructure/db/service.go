package db

import (
	"fmt"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/ark-network/pls/internal/core/ports"
	badgerdb "github.com/ark-network/pls/internal/infrastructure/db/badger"
)

var eventStoreTypes = map[string]func(...interface{}) (domain.NegotiationRepository, error){
	"badger": badgerdb.NewNegotiationRepository,
}

type ServiceConfig struct {
	EventStoreType   string
	EventStoreConfig []interface{}
}

type service struct {
	negotiationStore domain.NegotiationRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", config.EventStoreType)
	}

	negotiationStore, err := eventStoreFactory(config.EventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}

	return &service{negotiationStore}, nil
}

func (s *service) Negotiations() domain.NegotiationRepository {
	return s.negotiationStore
}

func (s *service) Close() {
	s.negotiationStore.Close()
}
