package repository

import "context"

// TransactionManager runs a unit of work atomically. Usecases depend on it
// instead of on a driver, so the gorm and in-memory stores are interchangeable.
type TransactionManager interface {
	// Execute commits when fn returns nil and rolls back otherwise. Repositories
	// obtained from the factory inside fn all see the same transaction.
	Execute(ctx context.Context, fn func(txRepoFactory RepositoryFactory) error) error
}

// RepositoryFactory hands out repositories bound to one transaction.
type RepositoryFactory interface {
	PrincipalRepo() PrincipalRepository
	RefreshTokenRepo() RefreshTokenRepository
}
