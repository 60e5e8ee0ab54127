package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/pkg/errors"
)

// InitStore builds the configured Store backend and verifies connectivity
// with a bounded number of retries before handing it out.
func InitStore(cfg config.App) (storage.Store, error) {
	var store storage.Store
	var err error
	switch cfg.StoreBackend {
	case "redis", "":
		store, err = NewRedisStore(cfg.RedisURL)
	case "postgres":
		store, err = NewPostgresStore(cfg.DBConnStr)
	default:
		err = fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}
	if err := pingWithRetries(store, cfg.ConnectRetries); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.GetLogger().Infof("Connected to %s status store", cfg.StoreBackend)
	return store, nil
}

func pingWithRetries(store storage.Store, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = store.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if i < attempts-1 {
			log.GetLogger().Warnf("Store connection attempt %d failed, retrying: %v", i+1, err)
			time.Sleep(time.Second)
		}
	}
	return errors.Wrapf(err, "failed to connect to store after %d attempts", attempts)
}
