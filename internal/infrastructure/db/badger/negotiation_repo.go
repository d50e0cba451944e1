package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const eventStoreDir = "negotiation-events"

type eventsDTO struct {
	Id       string
	FileHash string
	Events   [][]byte
}

type negotiationRepository struct {
	store     *badgerhold.Store
	lock      *sync.Mutex
	chUpdates chan *domain.Negotiation
	handler   func(negotiation *domain.Negotiation)
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewNegotiationRepository expects the base directory and an optional
// badger.Logger. An empty directory selects an in-memory store.
func NewNegotiationRepository(config ...interface{}) (domain.NegotiationRepository, error) {
	if len(config) != 2 {
		return nil, fmt.Errorf("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, fmt.Errorf("invalid base directory")
	}

	var logger badger.Logger
	if config[1] != nil {
		logger, ok = config[1].(badger.Logger)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, eventStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open negotiation events store: %s", err)
	}
	repo := &negotiationRepository{
		store:     store,
		lock:      &sync.Mutex{},
		chUpdates: make(chan *domain.Negotiation),
		done:      make(chan struct{}),
	}
	go repo.listen()
	return repo, nil
}

func (r *negotiationRepository) Save(
	ctx context.Context, id string, events ...domain.Event,
) (*domain.Negotiation, error) {
	allEvents, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	allEvents = append(allEvents, events...)
	negotiation := domain.NewNegotiationFromEvents(allEvents)
	if err := r.upsert(ctx, id, negotiation.FileHash, allEvents); err != nil {
		return nil, err
	}
	r.wg.Add(1)
	go r.publishEvents(allEvents)
	return negotiation, nil
}

func (r *negotiationRepository) Load(
	ctx context.Context, id string,
) (*domain.Negotiation, error) {
	events, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) <= 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNegotiationNotFound, id)
	}
	return domain.NewNegotiationFromEvents(events), nil
}

func (r *negotiationRepository) List(_ context.Context) ([]*domain.Negotiation, error) {
	return r.find(nil)
}

func (r *negotiationRepository) FindByFileHash(
	_ context.Context, fileHash string,
) ([]*domain.Negotiation, error) {
	query := badgerhold.Where("FileHash").Eq(strings.ToLower(fileHash))
	return r.find(query)
}

func (r *negotiationRepository) find(query *badgerhold.Query) ([]*domain.Negotiation, error) {
	dtos := make([]eventsDTO, 0)
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, fmt.Errorf("failed to find negotiations: %s", err)
	}

	negotiations := make([]*domain.Negotiation, 0, len(dtos))
	for _, dto := range dtos {
		events, err := deserializeEvents(dto.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to decode negotiation %s: %s", dto.Id, err)
		}
		negotiations = append(negotiations, domain.NewNegotiationFromEvents(events))
	}
	sort.Slice(negotiations, func(i, j int) bool {
		return negotiations[i].Id < negotiations[j].Id
	})
	return negotiations, nil
}

func (r *negotiationRepository) RegisterEventsHandler(
	handler func(negotiation *domain.Negotiation),
) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.handler = handler
}

func (r *negotiationRepository) Close() {
	close(r.done)
	r.wg.Wait()
	r.store.Close()
}

func (r *negotiationRepository) get(
	_ context.Context, id string,
) ([]domain.Event, error) {
	dto := eventsDTO{}
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get events with id %s: %s", id, err)
	}

	return deserializeEvents(dto.Events)
}

func (r *negotiationRepository) upsert(
	_ context.Context, id, fileHash string, events []domain.Event,
) error {
	rawEvents, err := serializeEvents(events)
	if err != nil {
		return err
	}
	dto := eventsDTO{Id: id, FileHash: fileHash, Events: rawEvents}
	if err := r.store.Upsert(id, dto); err != nil {
		return fmt.Errorf("failed to upsert events with id %s: %s", id, err)
	}
	return nil
}

func (r *negotiationRepository) listen() {
	for {
		select {
		case <-r.done:
			return
		case negotiation := <-r.chUpdates:
			r.runHandler(negotiation)
		}
	}
}

func (r *negotiationRepository) publishEvents(events []domain.Event) {
	defer r.wg.Done()
	negotiation := domain.NewNegotiationFromEvents(events)
	select {
	case <-r.done:
		return
	case r.chUpdates <- negotiation:
	}
}

func (r *negotiationRepository) runHandler(negotiation *domain.Negotiation) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.handler == nil {
		return
	}
	r.handler(negotiation)
}
