package actionlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"zkns/internal/registry/models"
)

// Memory keeps the log in process. Settled actions move to a retained prefix
// once the cursor passes them; pending ones stay in append order.
type Memory struct {
	mu      sync.Mutex
	settled []models.Action
	pending []models.Action
	nextSeq uint64
	cursor  uint64
}

// NewMemory returns an empty log; the first appended action gets sequence 1.
func NewMemory() *Memory {
	return &Memory{nextSeq: 1}
}

func (m *Memory) Append(_ context.Context, action models.Action) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := action.Clone()
	a.Seq = m.nextSeq
	m.nextSeq++
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.pending = append(m.pending, a)
	return a.Seq, nil
}

func (m *Memory) Pending(_ context.Context, limit int) ([]models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Action, 0, n)
	for _, a := range m.pending[:n] {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *Memory) Settled(_ context.Context) ([]models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Action, 0, len(m.settled))
	for _, a := range m.settled {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (m *Memory) PendingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), nil
}

func (m *Memory) Cursor(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *Memory) MarkSettled(_ context.Context, through uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if through < m.cursor {
		return ErrCursorRegression
	}
	i := 0
	for i < len(m.pending) && m.pending[i].Seq <= through {
		i++
	}
	m.settled = append(m.settled, m.pending[:i]...)
	m.pending = m.pending[i:]
	m.cursor = through
	return nil
}
