package inmemorystore

import (
	"context"
	"sync"

	"github.com/ark-network/pls/pkg/identity"
)

type inmemoryStore struct {
	data *identity.Data
	lock *sync.RWMutex
}

func NewIdentityStore() (identity.Store, error) {
	return &inmemoryStore{lock: &sync.RWMutex{}}, nil
}

func (s *inmemoryStore) AddIdentity(_ context.Context, data identity.Data) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.data = &data
	return nil
}

func (s *inmemoryStore) GetIdentity(_ context.Context) (*identity.Data, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.data, nil
}

func (s *inmemoryStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.data = nil
	return nil
}
