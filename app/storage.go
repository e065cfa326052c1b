package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/db"
	"github.com/talkvault/talkvault/internal/lock"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/internal/store/memory"
	"github.com/talkvault/talkvault/internal/store/postgres"
	"github.com/talkvault/talkvault/internal/store/sqlite"
	"github.com/talkvault/talkvault/types/config"
)

// initStorageConnections opens and migrates the database unless one was injected or the driver keeps rows in memory.
func initStorageConnections(ctx context.Context, cfg *config.Config, opt *containerConfig, log zerolog.Logger) (*sql.DB, error) {
	if opt.db != nil || cfg.StorageDriver == config.Memory {
		return opt.db, nil
	}
	conn, err := db.Init(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.StorageDriver, err)
	}
	return conn, nil
}

func createStores(driver config.StorageDriver, conn *sql.DB) (store.JobStore, store.LockStore, error) {
	switch driver {
	case config.Postgres:
		return postgres.NewPostgresJobStore(conn), postgres.NewPostgresLockStore(conn), nil
	case config.SQLite:
		return sqlite.NewSQLiteJobStore(conn), sqlite.NewSQLiteLockStore(conn), nil
	case config.Memory:
		s := memory.NewMemoryStore()
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", db.ErrUnsupportedDriver, driver)
}

func initRedis(cfg config.RedisConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func createLockManager(cfg *config.Config, lockStore store.LockStore, rdb redis.UniversalClient, log zerolog.Logger) lock.Manager {
	if cfg.LockDriver == config.LockRedis {
		return lock.NewRedisLockManager(rdb, cfg.RedisConfig.KeyPrefix, log)
	}
	return lock.NewStoreLockManager(lockStore, log)
}

// Stores are the storage handles used by one-shot commands that do not run the scheduler.
type Stores struct {
	DB    *sql.DB
	Redis redis.UniversalClient
	Jobs  store.JobStore
	Locks lock.Manager
}

func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	s := &Stores{}
	conn, err := initStorageConnections(ctx, cfg, &containerConfig{}, log)
	if err != nil {
		return nil, err
	}
	s.DB = conn

	jobs, locks, err := createStores(cfg.StorageDriver, conn)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Jobs = jobs
	if cfg.LockDriver == config.LockRedis {
		s.Redis = initRedis(cfg.RedisConfig)
	}
	s.Locks = createLockManager(cfg, locks, s.Redis, log)
	return s, nil
}

func (s *Stores) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
