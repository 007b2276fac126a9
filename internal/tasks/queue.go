package tasks

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/nexuscore/agentcore/pkg/models"
)

// ErrTaskNotFound is returned when a Queue lookup misses.
var ErrTaskNotFound = errors.New("tasks: task not found")

// Queue persists and dequeues the pkg/models.Task records the heartbeat
// tick operates on (§4.12). This is distinct from Store, which persists
// ScheduledTask/TaskExecution cron-job-definition records.
type Queue interface {
	// Create assigns an ID and CreatedAt/UpdatedAt, then persists the task.
	Create(ctx context.Context, title, description string, priority int) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	// Update persists the given task's mutable fields (status, result,
	// updated_at) keyed by ID.
	Update(ctx context.Context, task *models.Task) error
	// List returns all tasks, in no particular order; callers filter/sort
	// as needed (ListPending, ListActive below cover the common cases).
	List(ctx context.Context) ([]*models.Task, error)
	// ListPending returns pending tasks ordered by priority desc, then
	// CreatedAt asc.
	ListPending(ctx context.Context) ([]*models.Task, error)
	// ListActive returns tasks in the in_progress state.
	ListActive(ctx context.Context) ([]*models.Task, error)
}

// MemoryQueue is an in-process Queue backed by a mutex-guarded map,
// suitable for a single-runtime personal-assistant deployment and for
// tests.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

// NewMemoryQueue returns an empty in-memory task queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(map[string]*models.Task)}
}

func (q *MemoryQueue) Create(ctx context.Context, title, description string, priority int) (*models.Task, error) {
	now := time.Now()
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      models.TaskPending,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.mu.Lock()
	q.tasks[task.ID] = task
	q.mu.Unlock()
	return cloneTask(task), nil
}

func (q *MemoryQueue) Get(ctx context.Context, id string) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task, ok := q.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (q *MemoryQueue) Update(ctx context.Context, task *models.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("tasks: task id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	stored := cloneTask(task)
	stored.UpdatedAt = time.Now()
	q.tasks[task.ID] = stored
	return nil
}

func (q *MemoryQueue) List(ctx context.Context) ([]*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (q *MemoryQueue) ListPending(ctx context.Context) ([]*models.Task, error) {
	all, _ := q.List(ctx)
	var pending []*models.Task
	for _, t := range all {
		if t.Status == models.TaskPending {
			pending = append(pending, t)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (q *MemoryQueue) ListActive(ctx context.Context) ([]*models.Task, error) {
	all, _ := q.List(ctx)
	var active []*models.Task
	for _, t := range all {
		if t.Status == models.TaskInProgress {
			active = append(active, t)
		}
	}
	return active, nil
}

func cloneTask(t *models.Task) *models.Task {
	cp := *t
	return &cp
}

// SQLiteQueue implements Queue on top of modernc.org/sqlite, grounded on
// internal/sessionstore.SQLiteStore's prepared-statement idiom.
type SQLiteQueue struct {
	db *sql.DB

	stmtGet    *sql.Stmt
	stmtUpsert *sql.Stmt
	stmtList   *sql.Stmt
}

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	status      TEXT NOT NULL,
	priority    INTEGER NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL,
	result      TEXT NOT NULL DEFAULT ''
);
`

// OpenSQLiteQueue opens (creating if necessary) a SQLite-backed task queue
// at path.
func OpenSQLiteQueue(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, err
	}

	q := &SQLiteQueue{db: db}
	if q.stmtGet, err = db.Prepare(`
		SELECT id, title, description, status, priority, created_at, updated_at, result
		FROM tasks WHERE id = ?
	`); err != nil {
		db.Close()
		return nil, err
	}
	if q.stmtUpsert, err = db.Prepare(`
		INSERT INTO tasks (id, title, description, status, priority, created_at, updated_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, description = excluded.description, status = excluded.status,
			priority = excluded.priority, updated_at = excluded.updated_at, result = excluded.result
	`); err != nil {
		db.Close()
		return nil, err
	}
	if q.stmtList, err = db.Prepare(`
		SELECT id, title, description, status, priority, created_at, updated_at, result FROM tasks
	`); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// Close releases the underlying database handle.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

func (q *SQLiteQueue) Create(ctx context.Context, title, description string, priority int) (*models.Task, error) {
	now := time.Now()
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      models.TaskPending,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.upsert(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (q *SQLiteQueue) upsert(ctx context.Context, t *models.Task) error {
	_, err := q.stmtUpsert.ExecContext(ctx, t.ID, t.Title, t.Description, string(t.Status), t.Priority, t.CreatedAt, t.UpdatedAt, t.Result)
	return err
}

func (q *SQLiteQueue) Get(ctx context.Context, id string) (*models.Task, error) {
	return scanTask(q.stmtGet.QueryRowContext(ctx, id))
}

func (q *SQLiteQueue) Update(ctx context.Context, task *models.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("tasks: task id is required")
	}
	task.UpdatedAt = time.Now()
	return q.upsert(ctx, task)
}

func (q *SQLiteQueue) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := q.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Task
	for rows.Next() {
		var t models.Task
		var status string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Priority, &t.CreatedAt, &t.UpdatedAt, &t.Result); err != nil {
			return nil, err
		}
		t.Status = models.TaskStatus(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (q *SQLiteQueue) ListPending(ctx context.Context) ([]*models.Task, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	var pending []*models.Task
	for _, t := range all {
		if t.Status == models.TaskPending {
			pending = append(pending, t)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (q *SQLiteQueue) ListActive(ctx context.Context) ([]*models.Task, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	var active []*models.Task
	for _, t := range all {
		if t.Status == models.TaskInProgress {
			active = append(active, t)
		}
	}
	return active, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var status string
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Priority, &t.CreatedAt, &t.UpdatedAt, &t.Result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	return &t, nil
}
