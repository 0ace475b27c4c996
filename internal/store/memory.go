package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"messagely/internal/models"
)

// MemoryUsers is an in-process credential store. Create checks and inserts
// under one lock, which gives the same atomicity as a unique index.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]models.User)}
}

func (s *MemoryUsers) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return ErrDuplicate
	}
	s.users[u.Username] = *u
	return nil
}

func (s *MemoryUsers) Find(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryUsers) TouchLogin(_ context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = at
	s.users[username] = u
	return nil
}

func (s *MemoryUsers) ListPublic(_ context.Context) ([]models.PublicUser, error) {
	s.mu.RLock()
	out := make([]models.PublicUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Public())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryUsers) FindPublic(_ context.Context, usernames ...string) (map[string]models.PublicUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.PublicUser, len(usernames))
	for _, name := range usernames {
		if u, ok := s.users[name]; ok {
			out[name] = u.Public()
		}
	}
	return out, nil
}

// Len is the number of stored users.
func (s *MemoryUsers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// MemoryMessages is an in-process message store with sequential ids.
type MemoryMessages struct {
	mu     sync.RWMutex
	nextID uint
	msgs   map[uint]models.Message
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{msgs: make(map[uint]models.Message)}
}

func (s *MemoryMessages) Create(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.msgs[m.ID] = *m
	return nil
}

func (s *MemoryMessages) Get(_ context.Context, id uint) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryMessages) MarkRead(_ context.Context, id uint, at time.Time) (*models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if m.ReadAt != nil {
		return &m, false, nil
	}
	t := at
	m.ReadAt = &t
	s.msgs[id] = m
	return &m, true, nil
}

func (s *MemoryMessages) ListFrom(_ context.Context, username string) ([]models.Message, error) {
	return s.filter(func(m models.Message) bool { return m.FromUsername == username }), nil
}

func (s *MemoryMessages) ListTo(_ context.Context, username string) ([]models.Message, error) {
	return s.filter(func(m models.Message) bool { return m.ToUsername == username }), nil
}

// Len is the number of stored messages.
func (s *MemoryMessages) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

func (s *MemoryMessages) filter(keep func(models.Message) bool) []models.Message {
	s.mu.RLock()
	out := make([]models.Message, 0)
	for _, m := range s.msgs {
		if keep(m) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
