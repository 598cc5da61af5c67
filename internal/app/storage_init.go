package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
	healthcheck "github.com/gwatkins2090/portfolio/internal/health"
	"github.com/gwatkins2090/portfolio/internal/storage/memory"
	"github.com/gwatkins2090/portfolio/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	cartStorage    domain.CartStorage
	outboxRepo     domain.OutboxRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Info("using in-memory cart storage")
		return runtimeDependencies{
			cartStorage:    memory.NewCartStorage(),
			outboxRepo:     memory.NewOutboxRepository(),
			storageChecker: healthcheck.CheckFunc(func(context.Context) error { return nil }),
		}, nil
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres cart storage")

		return runtimeDependencies{
			cartStorage:    postgres.NewCartStorage(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.CheckFunc(store.Ping),
			closeFn:        store.Close,
		}, nil
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
