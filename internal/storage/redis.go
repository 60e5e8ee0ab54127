package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Task records live under task:{id} as JSON strings.
const taskKeyPrefix = "task:"

func taskKey(id string) string { return taskKeyPrefix + id }

var _ storage.Store = (*RedisStore)(nil)

// RedisStore is the default Store backend: one JSON value per task id,
// last-write-wins.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) PutTask(ctx context.Context, record models.TaskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "marshal task %s", record.TaskID)
	}
	if err := s.client.Set(ctx, taskKey(record.TaskID), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "put task %s", record.TaskID)
	}
	return nil
}

func (s *RedisStore) GetTask(ctx context.Context, taskID string) (models.TaskRecord, error) {
	val, err := s.client.Get(ctx, taskKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.TaskRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TaskRecord{}, errors.Wrapf(err, "get task %s", taskID)
	}
	var record models.TaskRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return models.TaskRecord{}, errors.Wrapf(err, "decode task %s", taskID)
	}
	return record, nil
}

// ListTaskIDs enumerates task keys via SCAN; the set may be growing while
// we iterate, which is fine for listing.
func (s *RedisStore) ListTaskIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	iter := s.client.Scan(ctx, 0, taskKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), taskKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
