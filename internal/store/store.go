// Package store holds the record stores behind the auth core: the credential
// store and the message store, each with a gorm and an in-memory backend.
package store

import (
	"context"
	"errors"
	"time"

	"messagely/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Credentials owns the User lifecycle. Create must enforce username uniqueness
// atomically.
type Credentials interface {
	Create(ctx context.Context, u *models.User) error
	Find(ctx context.Context, username string) (*models.User, error)
	TouchLogin(ctx context.Context, username string, at time.Time) error
	// ListPublic returns every user ordered by username.
	ListPublic(ctx context.Context) ([]models.PublicUser, error)
	// FindPublic looks up many users at once; unknown names are absent from the map.
	FindPublic(ctx context.Context, usernames ...string) (map[string]models.PublicUser, error)
}

// Messages owns the Message lifecycle.
type Messages interface {
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id uint) (*models.Message, error)
	// MarkRead sets read_at to at only when it is still unset and returns the
	// message as stored afterwards. changed is true only for the call that
	// set read_at.
	MarkRead(ctx context.Context, id uint, at time.Time) (m *models.Message, changed bool, err error)
	ListFrom(ctx context.Context, username string) ([]models.Message, error)
	ListTo(ctx context.Context, username string) ([]models.Message, error)
}
