package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// memorySession bundles metadata with its chunk buffers.
type memorySession struct {
	meta   Session
	chunks map[int][]byte
}

// MemoryStore keeps sessions in process memory. Sessions are lost on
// restart, and two instances do not see each other's sessions. Use the
// redis store for multi-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// Create registers a fresh session.
func (m *MemoryStore) Create(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = &memorySession{
		meta:   *session,
		chunks: make(map[int][]byte),
	}
	return nil
}

// Get returns session metadata.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.meta.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	meta := s.meta
	return &meta, nil
}

// PutChunk stores one chunk and slides the expiry forward.
func (m *MemoryStore) PutChunk(ctx context.Context, id string, index int, data []byte, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.meta.ExpiresAt) {
		return 0, ErrSessionNotFound
	}

	if _, seen := s.chunks[index]; !seen {
		s.meta.Received++
	}
	s.chunks[index] = data
	s.meta.ExpiresAt = time.Now().Add(ttl)
	return s.meta.Received, nil
}

// Chunks returns a copy of the stored chunk map.
func (m *MemoryStore) Chunks(ctx context.Context, id string) (map[int][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.meta.ExpiresAt) {
		return nil, ErrSessionNotFound
	}

	out := make(map[int][]byte, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c
	}
	return out, nil
}

// Delete removes a session if present.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// SweepExpired drops every session past its expiry.
func (m *MemoryStore) SweepExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, s := range m.sessions {
		if now.After(s.meta.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("count", removed).Msg("swept expired upload sessions")
	}
	return removed
}
