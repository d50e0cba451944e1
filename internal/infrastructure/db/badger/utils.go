package badgerdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ark-network/pls/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for range ticker.C {
				if err := db.Badger().RunValueLogGC(0.5); err != nil &&
					err != badger.ErrNoRewrite && err != badger.ErrRejected {
					if logger != nil {
						logger.Errorf("%s", err)
					}
				}
			}
		}()
	}

	return db, nil
}

// eventEnvelope tags a serialized event with its type so that it can be
// decoded without guessing.
type eventEnvelope struct {
	Type domain.EventType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

func serializeEvents(events []domain.Event) ([][]byte, error) {
	rawEvents := make([][]byte, 0, len(events))
	for _, event := range events {
		buf, err := serializeEvent(event)
		if err != nil {
			return nil, err
		}
		rawEvents = append(rawEvents, buf)
	}
	return rawEvents, nil
}

func deserializeEvents(rawEvents [][]byte) ([]domain.Event, error) {
	events := make([]domain.Event, 0, len(rawEvents))
	for _, buf := range rawEvents {
		event, err := deserializeEvent(buf)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func serializeEvent(event domain.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Type: event.GetType(), Data: data})
}

func deserializeEvent(buf []byte) (domain.Event, error) {
	envelope := eventEnvelope{}
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode event: %s", err)
	}

	switch envelope.Type {
	case domain.EventTypeNegotiationStarted:
		return decode[domain.NegotiationStarted](envelope.Data)
	case domain.EventTypeRequestSuperseded:
		return decode[domain.RequestSuperseded](envelope.Data)
	case domain.EventTypeApprovalAccepted:
		return decode[domain.ApprovalAccepted](envelope.Data)
	case domain.EventTypeNegotiationFinalized:
		return decode[domain.NegotiationFinalized](envelope.Data)
	default:
		return nil, fmt.Errorf("unknown event type %d", envelope.Type)
	}
}

func decode[T domain.Event](data []byte) (domain.Event, error) {
	var event T
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %s", err)
	}
	return event, nil
}
