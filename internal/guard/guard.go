// Package guard holds the access checks run before a protected operation.
// Each check returns nil to allow or a service error to deny; nothing is
// written to shared request state.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"messagely/internal/models"
	"messagely/internal/service"
	"messagely/internal/store"
)

// TokenVerifier extracts the claimed username from a bearer token.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// MessageLoader fetches the message a request targets.
type MessageLoader interface {
	Get(ctx context.Context, id uint) (*models.Message, error)
}

// Action is what a caller wants to do with a message.
type Action int

const (
	ActionRead Action = iota
	ActionMarkRead
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionMarkRead:
		return "mark_read"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

type Guard struct {
	tokens   TokenVerifier
	messages MessageLoader
}

func New(tokens TokenVerifier, messages MessageLoader) *Guard {
	return &Guard{tokens: tokens, messages: messages}
}

// AuthenticateRequest turns a bearer token into an identity. A missing or
// unverifiable token is ErrUnauthenticated either way.
func (g *Guard) AuthenticateRequest(token string) (service.Identity, error) {
	if token == "" {
		return service.Identity{}, service.ErrUnauthenticated
	}
	username, err := g.tokens.Verify(token)
	if err != nil {
		return service.Identity{}, service.ErrUnauthenticated
	}
	return service.Identity{Username: username}, nil
}

func EnsureLoggedIn(id service.Identity) error {
	if id.IsZero() {
		return service.ErrUnauthenticated
	}
	return nil
}

// EnsureCorrectUser allows only the user named by the resource itself.
func EnsureCorrectUser(id service.Identity, username string) error {
	if err := EnsureLoggedIn(id); err != nil {
		return err
	}
	if id.Username != username {
		return service.ErrForbidden
	}
	return nil
}

// CanAccessMessage is the message rule table. Both participants may read;
// only the recipient may mark the message read.
func CanAccessMessage(id service.Identity, m *models.Message, action Action) error {
	if err := EnsureLoggedIn(id); err != nil {
		return err
	}
	switch action {
	case ActionRead:
		if m.Participant(id.Username) {
			return nil
		}
	case ActionMarkRead:
		if m.ToUsername == id.Username {
			return nil
		}
	}
	return service.ErrForbidden
}

// AuthorizeMessage loads the message and applies CanAccessMessage. A missing
// identity is rejected before the store is touched; a missing message is
// reported before any rule runs.
func (g *Guard) AuthorizeMessage(ctx context.Context, id service.Identity, messageID uint, action Action) (*models.Message, error) {
	if err := EnsureLoggedIn(id); err != nil {
		return nil, err
	}
	m, err := g.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	if err := CanAccessMessage(id, m, action); err != nil {
		return nil, err
	}
	return m, nil
}

// BearerToken extracts the token from an Authorization header value, or
// returns "" when the scheme is not Bearer.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
