package users

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-pooling/internal/models"
)

var ErrNotFound = errors.New("user not found")

// Directory resolves user ids to display details. Account management
// itself lives outside this service; we only read.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*models.User, error)
}

type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]models.User)}
}

func (d *MemoryDirectory) Add(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) Lookup(_ context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
