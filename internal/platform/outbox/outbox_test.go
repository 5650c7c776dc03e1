package outbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	task := newTask(Payload{SubmissionID: "abc", RowIndex: 2, PatientName: "Jane Doe"}, time.Now())

	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Payload.SubmissionID != "abc" || got.Status != StatusPending {
		t.Errorf("unexpected task: %+v", got)
	}

	got.Status = StatusSent
	if err := s.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := s.Get(ctx, task.ID)
	if again.Status != StatusSent {
		t.Errorf("expected sent, got %s", again.Status)
	}
	if task.Status != StatusPending {
		t.Error("store must not alias the caller's task")
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Get: expected ErrTaskNotFound, got %v", err)
	}
	if err := s.Update(context.Background(), &Task{ID: "missing"}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Update: expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryStore_ListAndStats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	statuses := []Status{StatusSent, StatusFailed, StatusSent, StatusPending, StatusSkipped}
	for i, st := range statuses {
		task := newTask(Payload{RowIndex: i + 2}, base.Add(time.Duration(i)*time.Minute))
		task.Status = st
		s.Create(ctx, task)
	}

	all, total, err := s.List(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(all) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(all), total)
	}
	if all[0].Payload.RowIndex != 6 {
		t.Errorf("expected newest first (row 6), got row %d", all[0].Payload.RowIndex)
	}

	sent, total, _ := s.List(ctx, StatusSent, 10, 0)
	if total != 2 || len(sent) != 2 {
		t.Errorf("expected 2 sent tasks, got %d (total %d)", len(sent), total)
	}

	past, total, _ := s.List(ctx, "", 10, 50)
	if len(past) != 0 || total != 5 {
		t.Errorf("expected empty page past the end, got %d (total %d)", len(past), total)
	}

	stats, _ := s.Stats(ctx)
	want := map[Status]int{StatusPending: 1, StatusSent: 2, StatusFailed: 1, StatusSkipped: 1}
	for st, n := range want {
		if stats[st] != n {
			t.Errorf("stats[%s] = %d, want %d", st, stats[st], n)
		}
	}

	pending, _ := s.Pending(ctx)
	if len(pending) != 1 || pending[0].Payload.RowIndex != 5 {
		t.Errorf("unexpected pending: %+v", pending)
	}
}

func TestSkip(t *testing.T) {
	err := Skip("email not configured: %s", "SENDGRID_API_KEY")
	var s *Skipped
	if !errors.As(err, &s) {
		t.Fatal("expected *Skipped")
	}
	if s.Reason != "email not configured: SENDGRID_API_KEY" {
		t.Errorf("unexpected reason %q", s.Reason)
	}
	wrapped := errors.Join(errors.New("context"), err)
	if !errors.As(wrapped, &s) {
		t.Error("expected wrapped Skipped to be detected")
	}
}
