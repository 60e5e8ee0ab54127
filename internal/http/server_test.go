package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/islamelhosary/HistoFlow/internal/stages"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/service"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testServer(t *testing.T) (*httptest.Server, storage.Store) {
	t.Helper()
	store := storage.NewMockStore()
	registry, err := stages.BuildRegistry(models.RetryPolicy{MaxRetries: 0})
	assert.NoError(t, err)
	svc := service.NewPipelineService(context.Background(), store, registry, logrus.StandardLogger(), 2)
	t.Cleanup(svc.Stop)

	srv := httptest.NewServer(NewMux(svc))
	t.Cleanup(srv.Close)
	return srv, store
}

func setPipelineEnv(t *testing.T, slides int) {
	t.Helper()
	wsiDir := t.TempDir()
	for i := 0; i < slides; i++ {
		name := filepath.Join(wsiDir, string(rune('a'+i))+".svs")
		assert.NoError(t, os.WriteFile(name, []byte("slide "+name), 0o644))
	}
	modelPath := filepath.Join(t.TempDir(), "model.pth")
	assert.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o644))

	t.Setenv("PIPELINE_WSI_FOLDER", wsiDir)
	t.Setenv("PIPELINE_OUTPUT_FOLDER", filepath.Join(t.TempDir(), "out"))
	t.Setenv("PIPELINE_MODEL_PATH", modelPath)
	t.Setenv("PIPELINE_RETRY_DELAY_SECONDS", "0")
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestRunPipelineReturnsTaskID(t *testing.T) {
	setPipelineEnv(t, 1)
	srv, store := testServer(t)

	resp, err := http.Post(srv.URL+"/run-pipeline", "application/json", bytes.NewBufferString(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.NotEmpty(t, body["task_id"])

	record, err := store.GetTask(context.Background(), body["task_id"])
	assert.NoError(t, err)
	assert.Equal(t, body["task_id"], record.TaskID)
}

func TestRunPipelineRejectsInvalidConfig(t *testing.T) {
	setPipelineEnv(t, 1)
	srv, store := testServer(t)

	missing := filepath.Join(t.TempDir(), "missing")
	payload := `{"wsi_folder": "` + missing + `"}`
	resp, err := http.Post(srv.URL+"/run-pipeline", "application/json", bytes.NewBufferString(payload))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["detail"], "wsi_folder")

	ids, err := store.ListTaskIDs(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunPipelineRejectsNonPost(t *testing.T) {
	setPipelineEnv(t, 1)
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/run-pipeline")
	assert.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusUnknownTaskNotFound(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/status/does-not-exist")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Task not found", body["detail"])
}

func TestStatusReturnsRecord(t *testing.T) {
	srv, store := testServer(t)

	record := models.TaskRecord{TaskID: "abc", Status: models.RunningTaskStatus, StartTime: time.Now()}
	assert.NoError(t, store.PutTask(context.Background(), record))

	resp, err := http.Get(srv.URL + "/status/abc")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.TaskRecord
	decodeBody(t, resp, &got)
	assert.Equal(t, "abc", got.TaskID)
	assert.Equal(t, models.RunningTaskStatus, got.Status)
}

func TestResultNotReadyForRunningTask(t *testing.T) {
	srv, store := testServer(t)

	record := models.TaskRecord{TaskID: "running-task", Status: models.RunningTaskStatus, StartTime: time.Now()}
	assert.NoError(t, store.PutTask(context.Background(), record))

	resp, err := http.Get(srv.URL + "/result/running-task")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "Task is still running", body["detail"])
}

func TestResultReturnsTerminalRecord(t *testing.T) {
	srv, store := testServer(t)

	now := time.Now()
	record := models.TaskRecord{
		TaskID:    "done-task",
		Status:    models.CompletedTaskStatus,
		StartTime: now.Add(-time.Minute),
		EndTime:   &now,
		Results:   &models.Results{Success: true},
	}
	assert.NoError(t, store.PutTask(context.Background(), record))

	resp, err := http.Get(srv.URL + "/result/done-task")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.TaskRecord
	decodeBody(t, resp, &got)
	assert.Equal(t, models.CompletedTaskStatus, got.Status)
	assert.NotNil(t, got.Results)
	assert.True(t, got.Results.Success)
}

func TestTasksListsKnownIDs(t *testing.T) {
	srv, store := testServer(t)

	for _, id := range []string{"t1", "t2"} {
		record := models.TaskRecord{TaskID: id, Status: models.QueuedTaskStatus, StartTime: time.Now()}
		assert.NoError(t, store.PutTask(context.Background(), record))
	}

	resp, err := http.Get(srv.URL + "/tasks")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ids []string
	decodeBody(t, resp, &ids)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
}

func TestHealthReportsStoreState(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, apiVersion, body["version"])
}
