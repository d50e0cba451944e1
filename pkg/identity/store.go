package identity

import "context"

const (
	FileStore     = "file"
	InMemoryStore = "inmemory"
)

// Data is what a Store persists: the encrypted private key and the x-only hex
// pubkey, which can be shown without unlocking.
type Data struct {
	EncryptedPrvkey []byte
	PubKey          string
}

// Store is the secure storage collaborator of a Session.
type Store interface {
	AddIdentity(ctx context.Context, data Data) error
	// GetIdentity returns nil, nil when nothing is stored.
	GetIdentity(ctx context.Context) (*Data, error)
	Clear(ctx context.Context) error
}
