package postgres

import (
	"context"
	"database/sql"

	"ideaboard/internal/domain/repository"
	"ideaboard/internal/errors"

	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// gormTransactionManager implements the domain's TransactionManager interface using GORM.
type gormTransactionManager struct {
	db *gorm.DB
}

// gormRepositoryFactory hands out repositories bound to one GORM transaction.
type gormRepositoryFactory struct {
	tx *gorm.DB
}

// PrincipalRepo creates a principal repository bound to the transaction.
func (f *gormRepositoryFactory) PrincipalRepo() repository.PrincipalRepository {
	return NewPrincipalRepository(f.tx)
}

// RefreshTokenRepo creates a refresh token repository bound to the transaction.
func (f *gormRepositoryFactory) RefreshTokenRepo() repository.RefreshTokenRepository {
	return NewRefreshTokenRepository(f.tx)
}

// NewTransactionManager is the constructor for gormTransactionManager.
func NewTransactionManager(db *gorm.DB) repository.TransactionManager {
	return &gormTransactionManager{db: db}
}

// Execute runs fn inside one read-committed transaction on the primary. Row locks taken
// with FindByIDForUpdate are held until fn returns. An error or panic from fn rolls back.
func (tm *gormTransactionManager) Execute(ctx context.Context, fn func(repoFactory repository.RepositoryFactory) error) error {
	err := tm.db.WithContext(ctx).Clauses(dbresolver.Write).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepositoryFactory{tx: tx})
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})

	return errors.WithStack(err)
}
