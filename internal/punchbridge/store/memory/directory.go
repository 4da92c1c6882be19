package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

type Directory struct {
	mu    sync.RWMutex
	users map[string]types.UserMapping
}

func NewDirectory(users ...types.UserMapping) *Directory {
	d := &Directory{users: make(map[string]types.UserMapping, len(users))}
	for _, u := range users {
		d.users[u.DeviceID] = u
	}
	return d
}

func (d *Directory) ReplaceAll(_ context.Context, users []types.UserMapping) error {
	next := make(map[string]types.UserMapping, len(users))
	for _, u := range users {
		next[u.DeviceID] = u
	}
	d.mu.Lock()
	d.users = next
	d.mu.Unlock()
	return nil
}

func (d *Directory) Lookup(_ context.Context, deviceID string) (types.UserMapping, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[deviceID]
	return u, ok, nil
}

func (d *Directory) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), nil
}

// Put adds or replaces one mapping. Test-only helper.
func (d *Directory) Put(u types.UserMapping) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.DeviceID] = u
}
