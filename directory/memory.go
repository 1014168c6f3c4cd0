// Package directory provides core.UserDirectory implementations: an
// in-memory map for tests and development, and a SQL table via bun.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/acme-app/authcontext/core"
)

// MemoryDirectory keeps users in process memory. Emails match exactly.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[core.UserID]*core.User
	byEmail map[string]core.UserID
}

// NewMemoryDirectory returns a directory seeded with users. Users without an
// id get a random UUID.
func NewMemoryDirectory(users ...*core.User) *MemoryDirectory {
	d := &MemoryDirectory{
		byID:    make(map[core.UserID]*core.User),
		byEmail: make(map[string]core.UserID),
	}
	for _, u := range users {
		_ = d.Add(u)
	}
	return d
}

// Add stores a copy of u. It fails when the email is already taken by
// another user.
func (d *MemoryDirectory) Add(u *core.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stored := cloneUser(u)
	if stored.ID == "" {
		stored.ID = core.UserID(uuid.NewString())
		u.ID = stored.ID
	}
	if owner, ok := d.byEmail[stored.Email]; ok && owner != stored.ID {
		return fmt.Errorf("%w: %s", ErrEmailTaken, stored.Email)
	}
	if prev, ok := d.byID[stored.ID]; ok {
		delete(d.byEmail, prev.Email)
	}
	d.byID[stored.ID] = stored
	d.byEmail[stored.Email] = stored.ID
	return nil
}

// Delete removes the user with id, if any.
func (d *MemoryDirectory) Delete(id core.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.byID[id]; ok {
		delete(d.byEmail, u.Email)
		delete(d.byID, id)
	}
}

func (d *MemoryDirectory) FindOneByID(_ context.Context, id core.UserID) (*core.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUserNotFound, id)
	}
	return cloneUser(u), nil
}

func (d *MemoryDirectory) FindOneByEmail(_ context.Context, email string) (*core.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, nil
	}
	return cloneUser(d.byID[id]), nil
}

func cloneUser(u *core.User) *core.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}
