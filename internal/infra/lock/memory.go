// Package lock provides the per-workflow busy flag that keeps two mutating
// actions on the same workflow from running at once.
package lock

import (
	"context"
	"sync"

	"github.com/propdesk/turnover/internal/domain"
)

// Memory is an in-process busy set. It is enough when a single daemon owns
// the record store.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an empty busy set.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock marks key busy or returns ErrWorkflowBusy. The returned unlock is
// safe to call more than once.
func (m *Memory) TryLock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, domain.ErrWorkflowBusy
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}

// Held returns the number of keys currently busy.
func (m *Memory) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
