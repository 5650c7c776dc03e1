package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redmonddental/intake/internal/platform/db"
	"github.com/redmonddental/intake/internal/platform/hipaa"
	"github.com/redmonddental/intake/pkg/pagination"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore keeps tasks in the intake_outbox table. The payload carries the
// patient name, so it is sealed when a Sealer is configured.
type PGStore struct {
	pool   *pgxpool.Pool
	sealer *hipaa.Sealer
}

func NewPGStore(pool *pgxpool.Pool, sealer *hipaa.Sealer) *PGStore {
	return &PGStore{pool: pool, sealer: sealer}
}

func (s *PGStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const taskColumns = `id::text, payload, status, attempts, last_error, created_at, updated_at, sent_at`

func (s *PGStore) sealPayload(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return hipaa.SealOptional(s.sealer, raw)
}

func (s *PGStore) Create(ctx context.Context, t *Task) error {
	payload, err := s.sealPayload(t.Payload)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO intake_outbox (
			id, submission_id, row_index, payload, status, attempts, last_error,
			created_at, updated_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Payload.SubmissionID, t.Payload.RowIndex, payload, string(t.Status),
		t.Attempts, t.LastError, t.CreatedAt, t.UpdatedAt, t.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox task: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, t *Task) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE intake_outbox SET
			status = $2, attempts = $3, last_error = $4, updated_at = $5, sent_at = $6
		WHERE id = $1`,
		t.ID, string(t.Status), t.Attempts, t.LastError, t.UpdatedAt, t.SentAt,
	)
	if err != nil {
		return fmt.Errorf("update outbox task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.scan(s.conn(ctx).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM intake_outbox WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, err
}

func (s *PGStore) List(ctx context.Context, status Status, limit, offset int) ([]*Task, int, error) {
	where, args := "", []interface{}{}
	if status != "" {
		where, args = "WHERE status = $1", append(args, string(status))
	}

	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM intake_outbox `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outbox tasks: %w", err)
	}

	page := pagination.Params{Limit: limit, Offset: offset}
	tasks, err := s.query(ctx,
		`SELECT `+taskColumns+` FROM intake_outbox `+where+
			` ORDER BY created_at DESC, id DESC `+page.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (s *PGStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM intake_outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	defer rows.Close()

	stats := map[Status]int{StatusPending: 0, StatusSent: 0, StatusFailed: 0, StatusSkipped: 0}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		stats[Status(st)] = n
	}
	return stats, rows.Err()
}

func (s *PGStore) Pending(ctx context.Context) ([]*Task, error) {
	return s.query(ctx, `SELECT `+taskColumns+` FROM intake_outbox
		WHERE status = $1 ORDER BY created_at`, string(StatusPending))
}

func (s *PGStore) query(ctx context.Context, sql string, args ...interface{}) ([]*Task, error) {
	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PGStore) scan(row pgx.Row) (*Task, error) {
	var t Task
	var payload, status string
	if err := row.Scan(&t.ID, &payload, &status, &t.Attempts, &t.LastError,
		&t.CreatedAt, &t.UpdatedAt, &t.SentAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)

	raw, err := hipaa.OpenOptional(s.sealer, payload)
	if err != nil {
		return nil, fmt.Errorf("open payload of task %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(raw, &t.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of task %s: %w", t.ID, err)
	}
	return &t, nil
}

// Ping reports whether the database is reachable.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
