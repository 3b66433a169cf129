// Package app wires configuration into the storage backends, the scan
// queue and the attendance service shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rfidattend/internal/attendance"
	"rfidattend/internal/config"
	"rfidattend/internal/handler"
	"rfidattend/internal/queue"
	"rfidattend/internal/store"
)

// Deps holds everything built from config.
type Deps struct {
	Service *attendance.Service
	Queue   queue.Queue
	Checks  []handler.HealthCheck

	closers []func(context.Context) error
}

type backend interface {
	attendance.Store
	attendance.SelectionStore
}

// Open connects the configured backends. queueSize sizes the in-memory
// queue when QUEUE_BACKEND=memory.
func Open(ctx context.Context, cfg config.App, queueSize int) (*Deps, error) {
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			d.Close(context.Background())
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var repo backend
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return db.Close() })
		d.Checks = append(d.Checks, handler.HealthCheck{Name: "postgres", Check: db.Healthy})
		pg := attendance.NewRepository(db.Client)
		if err := pg.Migrate(connectCtx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		repo = pg
	case "mongo":
		m, err := store.NewMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		d.closers = append(d.closers, m.Close)
		d.Checks = append(d.Checks, handler.HealthCheck{Name: "mongo", Check: m.Healthy})
		mr := attendance.NewMongoRepository(m.DB)
		if err := mr.EnsureIndexes(connectCtx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		repo = mr
	case "memory":
		log.Println("using in-memory store; data is lost on restart")
		repo = attendance.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	var rdb *store.Redis
	if cfg.SelectionBackend == "redis" || cfg.QueueBackend == "redis" {
		rdb = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		d.closers = append(d.closers, func(context.Context) error { return rdb.Close() })
		d.Checks = append(d.Checks, handler.HealthCheck{Name: "redis", Check: rdb.Healthy})
		if !rdb.Healthy(connectCtx) {
			log.Printf("warning: redis not reachable at %s", cfg.RedisAddr)
		}
	}

	var selection attendance.SelectionStore = repo
	switch cfg.SelectionBackend {
	case "store":
	case "redis":
		selection = attendance.NewRedisSelection(rdb.Client, "")
	default:
		return nil, fmt.Errorf("unknown SELECTION_BACKEND %q", cfg.SelectionBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
		d.Queue = queue.NewInMemory(queueSize)
	case "redis":
		d.Queue = queue.NewRedisQueue(rdb.Client, cfg.QueueKey)
	case "none":
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	d.Service = attendance.NewService(repo, selection, attendance.WithLocation(cfg.Location()))
	ok = true
	return d, nil
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close(ctx context.Context) error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
