package session

import (
	"context"
	"sync"
	"time"

	"github.com/acme-app/authcontext/core"
)

type memoryEntry struct {
	values    map[string][]byte
	expiresAt time.Time
}

// MemoryBackend keeps sessions in process memory with a sliding idle TTL.
// Expired sessions are dropped lazily on access.
type MemoryBackend struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*memoryEntry
}

// NewMemoryBackend returns a MemoryBackend. A ttl of zero selects DefaultTTL.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryBackend{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memoryEntry),
	}
}

func (b *MemoryBackend) Session(id string) core.SessionStore {
	return &memorySession{backend: b, id: id}
}

func (b *MemoryBackend) Exists(_ context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live(id) != nil, nil
}

func (b *MemoryBackend) Destroy(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}

// live returns the unexpired entry for id and slides its expiry.
// Callers hold b.mu.
func (b *MemoryBackend) live(id string) *memoryEntry {
	e, ok := b.sessions[id]
	if !ok {
		return nil
	}
	now := b.now()
	if now.After(e.expiresAt) {
		delete(b.sessions, id)
		return nil
	}
	e.expiresAt = now.Add(b.ttl)
	return e
}

type memorySession struct {
	backend *MemoryBackend
	id      string
}

func (s *memorySession) Has(_ context.Context, key string) (bool, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	e := s.backend.live(s.id)
	if e == nil {
		return false, nil
	}
	_, ok := e.values[key]
	return ok, nil
}

func (s *memorySession) Get(_ context.Context, key string) ([]byte, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	e := s.backend.live(s.id)
	if e == nil {
		return nil, nil
	}
	v, ok := e.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *memorySession) Set(_ context.Context, key string, value []byte) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	e := s.backend.live(s.id)
	if e == nil {
		e = &memoryEntry{
			values:    make(map[string][]byte),
			expiresAt: s.backend.now().Add(s.backend.ttl),
		}
		s.backend.sessions[s.id] = e
	}
	e.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *memorySession) Remove(_ context.Context, key string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	if e := s.backend.live(s.id); e != nil {
		delete(e.values, key)
	}
	return nil
}
