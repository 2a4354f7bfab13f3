package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"ideaboard/config"
	"ideaboard/internal/domain/lifecycle"
	"ideaboard/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	pgLib "github.com/slighter12/go-lib/database/postgres"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	poolMonitorInterval = 5 * time.Second
	poolWaitWarnAfter   = 50 * time.Millisecond
	dbStatsName         = "ideaboard_postgres"
)

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry `optional:"true"`
}

// New opens the gorm connection and ties ping, migrations and pool monitoring to the fx lifecycle.
func New(params Params) (*gorm.DB, error) {
	if params.Config.Postgres == nil {
		return nil, errors.New("postgres section must be configured for the postgres store")
	}

	db, err := pgLib.New(params.Config.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create PostgreSQL client")
	}
	db = db.Session(&gorm.Session{
		// Explicit transactions go through txManager.Execute, so skip gorm's per-statement one.
		SkipDefaultTransaction: true,
		Logger:                 newGormSlogLogger(params.Logger, params.Config),
	})
	// Surface gorm.ErrDuplicatedKey instead of raw driver errors.
	db.Config.TranslateError = true

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get PostgreSQL sql.DB")
	}

	var statsCollector prometheus.Collector
	if params.Registry != nil {
		statsCollector = collectors.NewDBStatsCollector(sqlDB, dbStatsName)
		if err := params.Registry.Register(statsCollector); err != nil {
			return nil, errors.Wrap(err, "failed to register PostgreSQL pool metrics")
		}
	}

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())

	params.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
			defer cancel()

			if err := sqlDB.PingContext(ctx); err != nil {
				return errors.Wrap(err, "failed to ping PostgreSQL")
			}

			if params.Config.Store.AutoMigrate {
				if err := Migrate(startCtx, db); err != nil {
					return err
				}
				params.Logger.Info("Postgres migrations applied")
			}

			go monitorPoolWaits(monitorCtx, params.Logger, sqlDB, poolMonitorInterval)

			return nil
		},
		OnStop: func(_ context.Context) error {
			cancelMonitor()
			if statsCollector != nil {
				params.Registry.Unregister(statsCollector)
			}

			return errors.WithStack(sqlDB.Close())
		},
	})

	return db, nil
}

// monitorPoolWaits logs whenever requests had to queue for a connection since the last tick.
func monitorPoolWaits(ctx context.Context, logger *slog.Logger, sqlDB *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := sqlDB.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := sqlDB.Stats()
			if attrs, waited := poolWaitAttrs(prev, cur); waited > 0 {
				level := slog.LevelDebug
				if waited >= poolWaitWarnAfter {
					level = slog.LevelWarn
				}
				logger.LogAttrs(ctx, level, "Postgres pool wait", attrs...)
			}
			prev = cur
		}
	}
}

// poolWaitAttrs describes the waits between two snapshots and returns their total duration.
func poolWaitAttrs(prev, cur sql.DBStats) ([]slog.Attr, time.Duration) {
	waits := cur.WaitCount - prev.WaitCount
	if waits <= 0 {
		return nil, 0
	}
	waited := cur.WaitDuration - prev.WaitDuration

	return []slog.Attr{
		slog.Int64("waits", waits),
		slog.Duration("waited", waited),
		slog.Duration("avg_wait", waited/time.Duration(waits)),
		slog.Int("open_conns", cur.OpenConnections),
		slog.Int("in_use", cur.InUse),
		slog.Int("max_open", cur.MaxOpenConnections),
	}, waited
}
