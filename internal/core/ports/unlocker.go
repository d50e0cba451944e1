package ports

import "context"

// Unlocker provides the password protecting the identity store.
type Unlocker interface {
	GetPassword(ctx context.Context) (string, error)
}
