// Package outbox runs post-submission side effects on a worker pool,
// recording each task's status so failures can be inspected and retried.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

var (
	ErrTaskNotFound = errors.New("outbox task not found")
	ErrNotRetryable = errors.New("only failed tasks can be retried")
	ErrClosed       = errors.New("outbox is shut down")
)

// Payload identifies the submission a task is about.
type Payload struct {
	SubmissionID string `json:"submissionId"`
	RowIndex     int    `json:"rowIndex"`
	PatientName  string `json:"patientName"`
}

// Task is one unit of outbox work.
type Task struct {
	ID        string     `json:"id"`
	Payload   Payload    `json:"payload"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"lastError,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
}

func newTask(p Payload, now time.Time) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Payload:   p,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Skipped wraps a reason so the task is recorded as skipped rather than
// failed.
type Skipped struct {
	Reason string
}

func (s *Skipped) Error() string { return "skipped: " + s.Reason }

// Skip returns an error that marks the task skipped.
func Skip(format string, args ...any) error {
	return &Skipped{Reason: fmt.Sprintf(format, args...)}
}

// Processor performs the side effect for one task.
type Processor interface {
	Process(ctx context.Context, t Task) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t Task) error

func (f ProcessorFunc) Process(ctx context.Context, t Task) error { return f(ctx, t) }

// Store persists tasks.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Update(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// List returns tasks newest first, optionally filtered by status, and the
	// total number matching the filter.
	List(ctx context.Context, status Status, limit, offset int) ([]*Task, int, error)
	Stats(ctx context.Context) (map[Status]int, error)
	Pending(ctx context.Context) ([]*Task, error)
}

// MemoryStore keeps tasks in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Create(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, status Status, limit, offset int) ([]*Task, int, error) {
	s.mu.RLock()
	var all []*Task
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			cp := *t
			all = append(all, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := map[Status]int{StatusPending: 0, StatusSent: 0, StatusFailed: 0, StatusSkipped: 0}
	for _, t := range s.tasks {
		stats[t.Status]++
	}
	return stats, nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.Status == StatusPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
