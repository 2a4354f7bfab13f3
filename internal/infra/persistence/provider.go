// Package persistence selects the repository backend configured for the process.
package persistence

import (
	"log/slog"

	"ideaboard/config"
	"ideaboard/internal/domain/repository"
	"ideaboard/internal/errors"
	"ideaboard/internal/infra/persistence/memory"
	"ideaboard/internal/infra/persistence/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Params holds dependencies for the repository provider
type Params struct {
	fx.In
	fx.Lifecycle

	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry `optional:"true"`
}

// Repositories is the set of repository contracts the usecases consume
type Repositories struct {
	fx.Out

	Principals    repository.PrincipalRepository
	RefreshTokens repository.RefreshTokenRepository
	TxManager     repository.TransactionManager
}

// New builds the repositories for config.Store.Driver.
func New(params Params) (Repositories, error) {
	switch params.Config.Store.Driver {
	case config.StoreDriverMemory:
		params.Logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()

		return Repositories{
			Principals:    store.PrincipalRepo(),
			RefreshTokens: store.RefreshTokenRepo(),
			TxManager:     store,
		}, nil

	case config.StoreDriverPostgres:
		db, err := postgres.New(postgres.Params{
			Lifecycle: params.Lifecycle,
			Config:    params.Config,
			Logger:    params.Logger,
			Registry:  params.Registry,
		})
		if err != nil {
			return Repositories{}, err
		}

		return Repositories{
			Principals:    postgres.NewPrincipalRepository(db),
			RefreshTokens: postgres.NewRefreshTokenRepository(db),
			TxManager:     postgres.NewTransactionManager(db),
		}, nil

	default:
		return Repositories{}, errors.Errorf("unknown store driver: %s", params.Config.Store.Driver)
	}
}
