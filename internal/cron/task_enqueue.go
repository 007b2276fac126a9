package cron

import (
	"context"
	"fmt"

	"github.com/nexuscore/agentcore/internal/tasks"
	"github.com/nexuscore/agentcore/pkg/models"
)

// scheduledTitlePrefix matches internal/heartbeat's coalescing rule, which
// only groups duplicate active tasks whose title carries this prefix.
const scheduledTitlePrefix = "[Scheduled] "

// TaskEnqueuer is the cron.AgentRunner bridge that turns a fired cron Job
// into a coalesced pkg/models.Task for the heartbeat tick to dequeue,
// rather than running the agent inline on the cron goroutine.
type TaskEnqueuer struct {
	queue tasks.Queue
}

// NewTaskEnqueuer builds a TaskEnqueuer bound to queue.
func NewTaskEnqueuer(queue tasks.Queue) *TaskEnqueuer {
	return &TaskEnqueuer{queue: queue}
}

// Run implements AgentRunner: enqueues a "[Scheduled] "-prefixed task for
// job, coalescing with any existing active (pending or in-progress) task
// sharing the same (title, description).
func (e *TaskEnqueuer) Run(ctx context.Context, job *Job) error {
	if job.Message == nil {
		return fmt.Errorf("cron: agent job %q has no message payload", job.Name)
	}
	title := scheduledTitlePrefix + job.Name
	description := job.Message.Content

	existing, err := e.queue.List(ctx)
	if err != nil {
		return fmt.Errorf("cron: list tasks for coalesced enqueue: %w", err)
	}
	for _, t := range existing {
		if t.Title != title || t.Description != description {
			continue
		}
		if t.Status == models.TaskPending || t.Status == models.TaskInProgress {
			return nil // coalesced: an active task already covers this trigger
		}
	}

	_, err = e.queue.Create(ctx, title, description, 0)
	return err
}

var _ AgentRunner = (*TaskEnqueuer)(nil)
