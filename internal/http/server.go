package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/service"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
)

const apiVersion = "1.0.0"

// NewMux wires the Gateway routes.
func NewMux(svc *service.PipelineService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/run-pipeline", RunPipelineHandler(svc))
	mux.HandleFunc("/status/", StatusHandler(svc))
	mux.HandleFunc("/result/", ResultHandler(svc))
	mux.HandleFunc("/tasks", TasksHandler(svc))
	mux.HandleFunc("/health", HealthHandler(svc))
	return mux
}

func StartServer(port string, svc *service.PipelineService) error {
	log.GetLogger().Infof("Starting HistoFlow server on :%s", port)
	return http.ListenAndServe(":"+port, NewMux(svc))
}

// RunPipelineHandler starts a new pipeline run. JSON fields in the request
// body override environment-based defaults; validation failures mean no
// task was created.
func RunPipelineHandler(svc *service.PipelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var overrides config.Overrides
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
				return
			}
		}

		taskID, err := svc.Submit(r.Context(), config.LoadPipeline(), overrides)
		if err != nil {
			var vErr *config.ValidationError
			if errors.As(err, &vErr) {
				log.GetLogger().Warnf("Rejected pipeline submission: %v", vErr)
				writeError(w, http.StatusBadRequest, vErr.Error())
				return
			}
			log.GetLogger().Errorf("Error starting pipeline: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to start pipeline: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
	}
}

// StatusHandler returns the current record for a task id.
func StatusHandler(svc *service.PipelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := strings.TrimPrefix(r.URL.Path, "/status/")
		if taskID == "" {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		record, err := svc.GetTask(r.Context(), taskID)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		if err != nil {
			log.GetLogger().Errorf("Error checking status for task %s: %v", taskID, err)
			writeError(w, http.StatusInternalServerError, "Failed to retrieve task status")
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// ResultHandler returns the full record of a terminal task; a task still
// queued or running yields a "not ready" error, never the partial record.
func ResultHandler(svc *service.PipelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := strings.TrimPrefix(r.URL.Path, "/result/")
		if taskID == "" {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		record, err := svc.GetResult(r.Context(), taskID)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		if errors.Is(err, service.ErrNotReady) {
			writeError(w, http.StatusBadRequest, "Task is still running")
			return
		}
		if err != nil {
			log.GetLogger().Errorf("Error retrieving result for task %s: %v", taskID, err)
			writeError(w, http.StatusInternalServerError, "Failed to retrieve task result")
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

// TasksHandler lists all known task identifiers.
func TasksHandler(svc *service.PipelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := svc.ListTasks(r.Context())
		if err != nil {
			log.GetLogger().Errorf("Error listing tasks: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to list tasks")
			return
		}
		writeJSON(w, http.StatusOK, ids)
	}
}

// HealthHandler reports store reachability.
func HealthHandler(svc *service.PipelineService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		store := "connected"
		if err := svc.Health(r.Context()); err != nil {
			log.GetLogger().Errorf("Store error during health check: %v", err)
			status = "degraded"
			store = "error: " + err.Error()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  status,
			"version": apiVersion,
			"components": map[string]string{
				"store": store,
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
