package storage

import (
	"context"
	"testing"
	"time"

	"github.com/islamelhosary/HistoFlow/internal/testutil"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestRedisStore(t *testing.T) {
	tr := testutil.SetupTestRedis(t)
	defer tr.Teardown(t)

	store, err := NewRedisStore(tr.URL)
	assert.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	assert.NoError(t, store.Ping(ctx))

	t.Run("GetUnknownTaskReturnsNotFound", func(t *testing.T) {
		_, err := store.GetTask(ctx, "unknown")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGetRoundtrip", func(t *testing.T) {
		record := models.TaskRecord{
			TaskID:    "task-1",
			Status:    models.QueuedTaskStatus,
			StartTime: time.Now().UTC().Truncate(time.Second),
		}
		assert.NoError(t, store.PutTask(ctx, record))

		got, err := store.GetTask(ctx, "task-1")
		assert.NoError(t, err)
		assert.Equal(t, record.TaskID, got.TaskID)
		assert.Equal(t, models.QueuedTaskStatus, got.Status)
		assert.True(t, got.StartTime.Equal(record.StartTime))
	})

	t.Run("OverwriteIsLastWriteWins", func(t *testing.T) {
		record := models.TaskRecord{TaskID: "task-2", Status: models.RunningTaskStatus, StartTime: time.Now()}
		assert.NoError(t, store.PutTask(ctx, record))

		now := time.Now()
		record.Status = models.CompletedTaskStatus
		record.EndTime = &now
		record.Results = &models.Results{Success: true}
		assert.NoError(t, store.PutTask(ctx, record))

		got, err := store.GetTask(ctx, "task-2")
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, got.Status)
		assert.NotNil(t, got.EndTime)
		assert.True(t, got.Results.Success)
	})

	t.Run("ListTaskIDs", func(t *testing.T) {
		ids, err := store.ListTaskIDs(ctx)
		assert.NoError(t, err)
		assert.ElementsMatch(t, []string{"task-1", "task-2"}, ids)
	})
}
