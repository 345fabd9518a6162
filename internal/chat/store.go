package chat

import (
	"context"
	"sync"

	"github.com/example/ride-pooling/internal/models"
)

// Store is the durable, append-only message log, one sequence per room.
// Messages are never edited or deleted.
type Store interface {
	Append(ctx context.Context, roomID string, msg models.Message) error
	History(ctx context.Context, roomID string) ([]models.Message, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string][]models.Message)}
}

func (m *MemoryStore) Append(_ context.Context, roomID string, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[roomID] = append(m.logs[roomID], msg)
	return nil
}

func (m *MemoryStore) History(_ context.Context, roomID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.logs[roomID]
	out := make([]models.Message, len(log))
	copy(out, log)
	return out, nil
}
