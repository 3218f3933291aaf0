package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func noopHandler(context.Context, *asynq.Task) error { return nil }

func TestWorkerConfigDefaults(t *testing.T) {
	cfg := WorkerConfig{}.withDefaults()
	require.Equal(t, 2, cfg.Concurrency)
	require.Equal(t, map[string]int{QueueDefault: 1}, cfg.Queues)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.NotNil(t, cfg.Logger)

	custom := WorkerConfig{Concurrency: 6, ShutdownTimeout: time.Second}.withDefaults()
	require.Equal(t, 6, custom.Concurrency)
	require.Equal(t, time.Second, custom.ShutdownTimeout)
}

func TestNewWorkerRejectsMiswiredTasks(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Handlers: []TaskHandler{{Type: TaskGLIntegrity}}})
	require.ErrorContains(t, err, "incomplete")

	_, err = NewWorker(WorkerConfig{Handlers: []TaskHandler{
		{Type: TaskGLIntegrity, Handler: noopHandler},
		{Type: TaskGLIntegrity, Handler: noopHandler},
	}})
	require.ErrorContains(t, err, "registered twice")

	task, err := NewCleanupTask(0)
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		Handlers: []TaskHandler{{Type: TaskGLIntegrity, Handler: noopHandler}},
		Cron:     []CronRegistration{{Spec: "15 3 * * *", Task: task}},
	})
	require.ErrorContains(t, err, TaskIdempotencyCleanup)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
	require.False(t, body.Paused)
}
