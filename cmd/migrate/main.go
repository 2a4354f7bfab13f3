package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"ideaboard/config"
	logs "ideaboard/internal/infra/log"
	"ideaboard/internal/infra/persistence/postgres"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Supported commands mirror goose: up, down, redo, reset, status, version.
func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <up|down|redo|reset|status|version> [args]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			config.New,
			logs.New,
			postgres.New,
		),
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, db *gorm.DB, logger *slog.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := postgres.RunMigrations(ctx, db, command, args...); err != nil {
						return err
					}
					logger.Info("Migration command finished", slog.String("command", command))

					return shutdowner.Shutdown()
				},
			})
		}),
	)

	app.Run()
	if err := app.Err(); err != nil {
		slog.Error("Migration failed", slog.Any("error", err))
		os.Exit(1)
	}
}
