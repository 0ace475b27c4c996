package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messagely/internal/models"
	"messagely/internal/store"
)

// UserService serves the read-only user views.
type UserService struct {
	users    store.Credentials
	messages store.Messages
}

func NewUserService(users store.Credentials, messages store.Messages) *UserService {
	return &UserService{users: users, messages: messages}
}

// UserDetail is a user's own profile, including login times.
type UserDetail struct {
	models.PublicUser
	JoinAt      time.Time `json:"join_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// SentMessage is a message seen from its sender, with the recipient expanded.
type SentMessage struct {
	ID     uint              `json:"id"`
	ToUser models.PublicUser `json:"to_user"`
	Body   string            `json:"body"`
	SentAt time.Time         `json:"sent_at"`
	ReadAt *time.Time        `json:"read_at"`
}

// ReceivedMessage is a message seen from its recipient, with the sender expanded.
type ReceivedMessage struct {
	ID       uint              `json:"id"`
	FromUser models.PublicUser `json:"from_user"`
	Body     string            `json:"body"`
	SentAt   time.Time         `json:"sent_at"`
	ReadAt   *time.Time        `json:"read_at"`
}

func (s *UserService) List(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.users.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) Get(ctx context.Context, username string) (*UserDetail, error) {
	u, err := s.users.Find(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &UserDetail{PublicUser: u.Public(), JoinAt: u.JoinAt, LastLoginAt: u.LastLoginAt}, nil
}

func (s *UserService) MessagesFrom(ctx context.Context, username string) ([]SentMessage, error) {
	msgs, err := s.messages.ListFrom(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list sent messages: %w", err)
	}
	users, err := s.resolve(ctx, msgs, func(m models.Message) string { return m.ToUsername })
	if err != nil {
		return nil, err
	}
	out := make([]SentMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, SentMessage{ID: m.ID, ToUser: participant(users, m.ToUsername), Body: m.Body, SentAt: m.SentAt, ReadAt: m.ReadAt})
	}
	return out, nil
}

func (s *UserService) MessagesTo(ctx context.Context, username string) ([]ReceivedMessage, error) {
	msgs, err := s.messages.ListTo(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("list received messages: %w", err)
	}
	users, err := s.resolve(ctx, msgs, func(m models.Message) string { return m.FromUsername })
	if err != nil {
		return nil, err
	}
	out := make([]ReceivedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ReceivedMessage{ID: m.ID, FromUser: participant(users, m.FromUsername), Body: m.Body, SentAt: m.SentAt, ReadAt: m.ReadAt})
	}
	return out, nil
}

// resolve batch-loads the counterpart users of msgs.
func (s *UserService) resolve(ctx context.Context, msgs []models.Message, pick func(models.Message) string) (map[string]models.PublicUser, error) {
	seen := make(map[string]struct{}, len(msgs))
	names := make([]string, 0, len(msgs))
	for _, m := range msgs {
		name := pick(m)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	users, err := s.users.FindPublic(ctx, names...)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	return users, nil
}
