package store

import (
	"context"
	"sync"
	"time"

	"github.com/wricardo/groupcart/group/session"
)

// Memory keeps sessions in a map. Documents are copied on the way in and out
// so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*session.Session)}
}

func (m *Memory) Create(ctx context.Context, s *session.Session) error {
	if err := checkNew(s); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.Code]; exists {
		return ErrDuplicateCode
	}
	m.sessions[s.Code] = s.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, code string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[session.NormalizeCode(code)]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[session.NormalizeCode(code)]
	return ok, nil
}

func (m *Memory) ActiveForParticipant(ctx context.Context, userID string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var newest *session.Session
	for _, s := range m.sessions {
		if !activeMember(s, userID) {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, session.ErrSessionNotFound
	}
	return newest.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, s *session.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code := session.NormalizeCode(s.Code)
	cur, ok := m.sessions[code]
	if !ok {
		return session.ErrSessionNotFound
	}
	if cur.Version != s.Version {
		return ErrVersionConflict
	}
	s.Version++
	m.sessions[code] = s.Clone()
	return nil
}

func (m *Memory) Update(ctx context.Context, code string, fn UpdateFunc) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = session.NormalizeCode(code)
	cur, ok := m.sessions[code]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	next, changed, err := apply(cur, fn)
	if err != nil || !changed {
		return next, err
	}
	next.Version++
	m.sessions[code] = next.Clone()
	return next, nil
}

func (m *Memory) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	code = session.NormalizeCode(code)
	if _, ok := m.sessions[code]; !ok {
		return session.ErrSessionNotFound
	}
	delete(m.sessions, code)
	return nil
}

func (m *Memory) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for code, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, code)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
