package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type SessionStatus int

const (
	Uninitialized SessionStatus = iota
	Active
	SignedOut
)

func (s SessionStatus) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Active:
		return "active"
	case SignedOut:
		return "signed-out"
	default:
		return "unknown"
	}
}

var (
	ErrNotLoggedIn     = errors.New("no active identity")
	ErrAlreadyLoggedIn = errors.New("an identity is already active")
	ErrNoIdentity      = errors.New("no identity stored")
)

// Session holds at most one active Identity, persisted encrypted through a
// Store. Callers are expected to serialize login and sign-out.
type Session struct {
	store  Store
	cypher *Cypher

	lock     sync.RWMutex
	identity *Identity
	status   SessionStatus
}

func NewSession(store Store, cypher *Cypher) *Session {
	if cypher == nil {
		cypher = NewCypher(DefaultScryptN)
	}
	return &Session{store: store, cypher: cypher}
}

func (s *Session) Status() SessionStatus {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.status
}

// Identity returns the active identity.
func (s *Session) Identity() (*Identity, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.status != Active {
		return nil, ErrNotLoggedIn
	}
	return s.identity, nil
}

// Login restores the stored identity, or creates a random one if the store
// is empty.
func (s *Session) Login(ctx context.Context, password string) (*Identity, error) {
	id, err := s.Restore(ctx, password)
	if errors.Is(err, ErrNoIdentity) {
		return s.LoginWithRandomKey(ctx, password)
	}
	return id, err
}

func (s *Session) LoginWithRandomKey(ctx context.Context, password string) (*Identity, error) {
	id, err := Generate()
	if err != nil {
		return nil, err
	}
	return s.login(ctx, id, password)
}

// LoginWithPrivKey activates the identity of the given hex or nsec key.
func (s *Session) LoginWithPrivKey(ctx context.Context, key, password string) (*Identity, error) {
	id, err := Parse(key)
	if err != nil {
		return nil, err
	}
	return s.login(ctx, id, password)
}

// Restore decrypts and activates the stored identity.
func (s *Session) Restore(ctx context.Context, password string) (*Identity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.status == Active {
		return s.identity, nil
	}

	data, err := s.store.GetIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity store: %w", err)
	}
	if data == nil {
		return nil, ErrNoIdentity
	}

	buf, err := s.cypher.Decrypt(data.EncryptedPrvkey, []byte(password))
	if err != nil {
		return nil, err
	}
	id, err := FromBytes(buf)
	if err != nil {
		return nil, err
	}
	if id.PubKey() != data.PubKey {
		return nil, fmt.Errorf("stored pubkey does not match decrypted private key")
	}

	s.identity = id
	s.status = Active
	return id, nil
}

// SignOut drops the active identity and wipes the store.
func (s *Session) SignOut(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear identity store: %w", err)
	}
	s.identity = nil
	s.status = SignedOut
	return nil
}

func (s *Session) login(ctx context.Context, id *Identity, password string) (*Identity, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.status == Active {
		return nil, ErrAlreadyLoggedIn
	}

	encrypted, err := s.cypher.Encrypt(id.PrivKey().Serialize(), []byte(password))
	if err != nil {
		return nil, err
	}
	if err := s.store.AddIdentity(ctx, Data{
		EncryptedPrvkey: encrypted,
		PubKey:          id.PubKey(),
	}); err != nil {
		return nil, fmt.Errorf("failed to persist identity: %w", err)
	}

	s.identity = id
	s.status = Active
	return id, nil
}
