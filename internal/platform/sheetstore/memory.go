package sheetstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process table used by tests and the "memory" backend.
type Memory struct {
	mu   sync.RWMutex
	rows [][]string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Header(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return nil, nil
	}
	return cloneRow(m.rows[0]), nil
}

func (m *Memory) WriteHeader(_ context.Context, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		m.rows = append(m.rows, cloneRow(header))
		return nil
	}
	m.rows[0] = cloneRow(header)
	return nil
}

func (m *Memory) Append(_ context.Context, row []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, trimRow(cloneRow(row)))
	return len(m.rows), nil
}

func (m *Memory) Rows(_ context.Context) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = cloneRow(r)
	}
	return out, nil
}

func (m *Memory) Row(_ context.Context, row int) ([]string, error) {
	if err := checkRow(row); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if row > len(m.rows) {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	return cloneRow(m.rows[row-1]), nil
}

func (m *Memory) UpdateCell(_ context.Context, row, col int, value string) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	if col < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidColumn, col)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if row > len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	r := m.rows[row-1]
	for len(r) <= col {
		r = append(r, "")
	}
	r[col] = value
	m.rows[row-1] = r
	return nil
}

func (m *Memory) DeleteRow(_ context.Context, row int) error {
	if err := checkDataRow(row); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if row > len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowNotFound, row)
	}
	m.rows = append(m.rows[:row-1], m.rows[row:]...)
	return nil
}

func (m *Memory) Close() error { return nil }
