package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/jobs"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func TestTriggerEnqueuesKnownJobs(t *testing.T) {
	rec := &recordingEnqueuer{}
	cli := &JobsCLI{client: rec}
	var out, errOut bytes.Buffer

	require.Equal(t, 0, run(context.Background(), cli, []string{"trigger", jobs.TaskGLIntegrity}, &out, &errOut))
	require.Equal(t, 0, run(context.Background(), cli, []string{"trigger", jobs.TaskIdempotencyCleanup}, &out, &errOut))
	require.Len(t, rec.tasks, 2)
	require.Equal(t, jobs.TaskGLIntegrity, rec.tasks[0].Type())
	require.Contains(t, out.String(), "enqueued ledger:gl_integrity id=t-1 queue=default")
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	cli := &JobsCLI{client: &recordingEnqueuer{}}
	var out, errOut bytes.Buffer
	require.Equal(t, 1, run(context.Background(), cli, []string{"trigger", "mail:send"}, &out, &errOut))
	require.Contains(t, errOut.String(), "unsupported job")
}

func TestUsageOnBadArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 2, run(context.Background(), &JobsCLI{}, nil, &out, &errOut))
	require.Contains(t, errOut.String(), "usage: ledgerctl")
}
