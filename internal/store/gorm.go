package store

import (
	"context"
	"time"

	"messagely/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// GormUsers is the postgres-backed credential store. The username primary key
// carries the uniqueness constraint; the *gorm.DB must be opened with
// TranslateError so violations surface as gorm.ErrDuplicatedKey.
type GormUsers struct {
	db *gorm.DB
}

func NewGormUsers(db *gorm.DB) *GormUsers {
	return &GormUsers{db: db}
}

func (s *GormUsers) Create(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

func (s *GormUsers) Find(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find user")
	}
	return &u, nil
}

func (s *GormUsers) TouchLogin(ctx context.Context, username string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Update("last_login_at", at)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update last login")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormUsers) ListPublic(ctx context.Context) ([]models.PublicUser, error) {
	var out []models.PublicUser
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("username", "first_name", "last_name", "phone").
		Order("username").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	return out, nil
}

func (s *GormUsers) FindPublic(ctx context.Context, usernames ...string) (map[string]models.PublicUser, error) {
	out := make(map[string]models.PublicUser, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}
	var rows []models.PublicUser
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("username", "first_name", "last_name", "phone").
		Where("username IN ?", usernames).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve users")
	}
	for _, u := range rows {
		out[u.Username] = u
	}
	return out, nil
}

// GormMessages is the postgres-backed message store.
type GormMessages struct {
	db *gorm.DB
}

func NewGormMessages(db *gorm.DB) *GormMessages {
	return &GormMessages{db: db}
}

func (s *GormMessages) Create(ctx context.Context, m *models.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrap(err, "failed to create message")
	}
	return nil
}

func (s *GormMessages) Get(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get message")
	}
	return &m, nil
}

func (s *GormMessages) MarkRead(ctx context.Context, id uint, at time.Time) (*models.Message, bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", at)
	if res.Error != nil {
		return nil, false, errors.Wrap(res.Error, "failed to mark message read")
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return m, res.RowsAffected > 0, nil
}

func (s *GormMessages) ListFrom(ctx context.Context, username string) ([]models.Message, error) {
	return s.list(ctx, "from_username = ?", username)
}

func (s *GormMessages) ListTo(ctx context.Context, username string) ([]models.Message, error) {
	return s.list(ctx, "to_username = ?", username)
}

func (s *GormMessages) list(ctx context.Context, cond, username string) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where(cond, username).Order("id").Find(&msgs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return msgs, nil
}
