package preview

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Store tracks live sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Create() *Session {
	s := NewSession(uuid.NewString())
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes the session and returns it so the caller can clean up files.
func (st *Store) Delete(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(st.sessions, id)
	return s, nil
}

// Expire drops sessions idle for longer than maxAge and returns them.
func (st *Store) Expire(maxAge time.Duration) []*Session {
	cutoff := time.Now().Add(-maxAge)

	st.mu.Lock()
	defer st.mu.Unlock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.lastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	return expired
}

// List returns all session states, newest first.
func (st *Store) List() []State {
	st.mu.RLock()
	states := make([]State, 0, len(st.sessions))
	for _, s := range st.sessions {
		states = append(states, s.State())
	}
	st.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.After(states[j].CreatedAt)
	})
	return states
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
