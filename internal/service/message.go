package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"messagely/internal/metrics"
	"messagely/internal/models"
	"messagely/internal/store"
)

// Identity is a username whose token has been verified. The user behind it
// may have disappeared since; re-resolve against the store when that matters.
type Identity struct {
	Username string
}

func (id Identity) IsZero() bool { return id.Username == "" }

// Notifier pushes events to a connected user. Delivery is best-effort.
type Notifier interface {
	Notify(username string, event any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, any) {}

// MessageService implements the message operations. Callers must have passed
// the matching guard check first.
type MessageService struct {
	messages store.Messages
	users    store.Credentials
	notifier Notifier
	now      func() time.Time
}

func NewMessageService(messages store.Messages, users store.Credentials, notifier Notifier) *MessageService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &MessageService{messages: messages, users: users, notifier: notifier, now: time.Now}
}

// MessageDetail is a message with both participants expanded.
type MessageDetail struct {
	ID       uint              `json:"id"`
	Body     string            `json:"body"`
	SentAt   time.Time         `json:"sent_at"`
	ReadAt   *time.Time        `json:"read_at"`
	FromUser models.PublicUser `json:"from_user"`
	ToUser   models.PublicUser `json:"to_user"`
}

// MessageSummary is what the sender gets back.
type MessageSummary struct {
	ID           uint      `json:"id"`
	FromUsername string    `json:"from_username"`
	ToUsername   string    `json:"to_username"`
	Body         string    `json:"body"`
	SentAt       time.Time `json:"sent_at"`
}

type ReadReceipt struct {
	ID     uint      `json:"id"`
	ReadAt time.Time `json:"read_at"`
}

type SendInput struct {
	ToUsername string `json:"to_username" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

// Event is the payload pushed over the notification hub.
type Event struct {
	Type    string `json:"type"`
	Message any    `json:"message"`
}

// Detail expands m into a MessageDetail.
func (s *MessageService) Detail(ctx context.Context, m *models.Message) (*MessageDetail, error) {
	users, err := s.users.FindPublic(ctx, m.FromUsername, m.ToUsername)
	if err != nil {
		return nil, fmt.Errorf("resolve participants: %w", err)
	}
	return &MessageDetail{
		ID:       m.ID,
		Body:     m.Body,
		SentAt:   m.SentAt,
		ReadAt:   m.ReadAt,
		FromUser: participant(users, m.FromUsername),
		ToUser:   participant(users, m.ToUsername),
	}, nil
}

// Send stores a message from the given identity. Both the sender and the
// recipient must exist; a token for a vanished user is unauthenticated.
func (s *MessageService) Send(ctx context.Context, from Identity, in SendInput) (*MessageSummary, error) {
	if from.IsZero() {
		return nil, ErrUnauthenticated
	}
	in.ToUsername = strings.TrimSpace(in.ToUsername)
	if err := checkRequired(in); err != nil {
		return nil, err
	}
	if _, err := s.users.Find(ctx, from.Username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("find sender: %w", err)
	}
	if _, err := s.users.Find(ctx, in.ToUsername); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find recipient: %w", err)
	}

	m := &models.Message{
		FromUsername: from.Username,
		ToUsername:   in.ToUsername,
		Body:         in.Body,
		SentAt:       s.now(),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	metrics.MessagesSent.Inc()

	summary := &MessageSummary{ID: m.ID, FromUsername: m.FromUsername, ToUsername: m.ToUsername, Body: m.Body, SentAt: m.SentAt}
	s.notifier.Notify(m.ToUsername, Event{Type: "message", Message: summary})
	return summary, nil
}

// MarkRead sets read_at the first time it is called. Later calls are no-ops
// that return the original timestamp.
func (s *MessageService) MarkRead(ctx context.Context, m *models.Message) (*ReadReceipt, error) {
	updated, changed, err := s.messages.MarkRead(ctx, m.ID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if updated.ReadAt == nil {
		return nil, fmt.Errorf("mark read: message %d still unread", m.ID)
	}

	receipt := &ReadReceipt{ID: updated.ID, ReadAt: *updated.ReadAt}
	if changed {
		s.notifier.Notify(updated.FromUsername, Event{Type: "read", Message: receipt})
	}
	return receipt, nil
}

func participant(users map[string]models.PublicUser, username string) models.PublicUser {
	if u, ok := users[username]; ok {
		return u
	}
	return models.PublicUser{Username: username}
}
