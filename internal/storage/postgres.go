package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

var _ storage.Store = (*PostgresStore)(nil)

// PostgresStore keeps task records in a single jsonb column, keyed by task
// id. Upserts give the same last-write-wins semantics as the Redis backend.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) PutTask(ctx context.Context, record models.TaskRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "marshal task %s", record.TaskID)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, record, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = CURRENT_TIMESTAMP`,
		record.TaskID, data)
	if err != nil {
		return errors.Wrapf(err, "put task %s", record.TaskID)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (models.TaskRecord, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, "SELECT record FROM tasks WHERE id = $1", taskID)
	if err == sql.ErrNoRows {
		return models.TaskRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TaskRecord{}, errors.Wrapf(err, "get task %s", taskID)
	}
	var record models.TaskRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.TaskRecord{}, errors.Wrapf(err, "decode task %s", taskID)
	}
	return record, nil
}

func (s *PostgresStore) ListTaskIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, "SELECT id FROM tasks ORDER BY updated_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return ids, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
