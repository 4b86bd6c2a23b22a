package store

import (
	"context"
	"sync"

	"github.com/tmoreaux/detectlab/internal/model"
)

// MemoryStore keeps everything in process memory. Used by tests and dry runs;
// state does not survive a restart.
//
// A mutex, not a third-party cache, backs this store: Update needs an atomic
// read-modify-write over the whole state struct, which per-key TTL caches do
// not provide.
type MemoryStore struct {
	mu    sync.Mutex
	state model.SessionState
	logs  []model.LogEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{state: model.NewSessionState()}
}

func (m *MemoryStore) State(ctx context.Context) (model.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, mutate func(s *model.SessionState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.Clone()
	if err := mutate(&next); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry model.LogEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return len(m.logs), nil
}

func (m *MemoryStore) Logs(ctx context.Context) ([]model.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.LogEntry, len(m.logs))
	copy(out, m.logs)
	return out, nil
}

func (m *MemoryStore) LogCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs), nil
}

func (m *MemoryStore) ClearLogs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = nil
	return nil
}

func (m *MemoryStore) Close() error { return nil }
