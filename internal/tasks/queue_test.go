package tasks

import (
	"context"
	"testing"

	"github.com/nexuscore/agentcore/pkg/models"
)

func TestMemoryQueueCreateGet(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	task, err := q.Create(ctx, "draft the memo", "write up q3 notes", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected a generated ID")
	}
	if task.Status != models.TaskPending {
		t.Errorf("Status = %v, want pending", task.Status)
	}

	got, err := q.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "draft the memo" {
		t.Errorf("Title = %q", got.Title)
	}
}

func TestMemoryQueueGetNotFound(t *testing.T) {
	q := NewMemoryQueue()
	if _, err := q.Get(context.Background(), "missing"); err != ErrTaskNotFound {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestMemoryQueueListPendingOrdersByPriorityThenAge(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	low, _ := q.Create(ctx, "low", "", 0)
	high, _ := q.Create(ctx, "high", "", 5)
	mid, _ := q.Create(ctx, "mid", "", 2)

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	if pending[0].ID != high.ID || pending[1].ID != mid.ID || pending[2].ID != low.ID {
		t.Errorf("ordering = %v, want high,mid,low", []string{pending[0].Title, pending[1].Title, pending[2].Title})
	}
}

func TestMemoryQueueUpdateChangesStatus(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	task, _ := q.Create(ctx, "t", "", 0)
	task.Status = models.TaskInProgress
	if err := q.Update(ctx, task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	active, err := q.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != task.ID {
		t.Errorf("active = %v, want [%s]", active, task.ID)
	}
}

func TestMemoryQueueUpdateMissingTask(t *testing.T) {
	q := NewMemoryQueue()
	err := q.Update(context.Background(), &models.Task{ID: "ghost"})
	if err != ErrTaskNotFound {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}
