package ports

import "github.com/ark-network/pls/internal/core/domain"

type RepoManager interface {
	Negotiations() domain.NegotiationRepository
	Close()
}
