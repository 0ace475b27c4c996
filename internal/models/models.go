package models

import "time"

// User is the stored credential of a registered user. SecretHash never leaves the process.
type User struct {
	Username    string    `gorm:"primaryKey;size:64" json:"username"`
	SecretHash  string    `gorm:"not null" json:"-"`
	FirstName   string    `gorm:"size:128;not null" json:"first_name"`
	LastName    string    `gorm:"size:128;not null" json:"last_name"`
	Phone       string    `gorm:"size:32;not null" json:"phone"`
	JoinAt      time.Time `gorm:"not null" json:"join_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// Public strips everything but the listing fields.
func (u User) Public() PublicUser {
	return PublicUser{Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, Phone: u.Phone}
}

type PublicUser struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Message is a directed message. ReadAt moves from nil to a timestamp once.
type Message struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	FromUsername string     `gorm:"index;size:64;not null" json:"from_username"`
	ToUsername   string     `gorm:"index;size:64;not null" json:"to_username"`
	Body         string     `gorm:"type:text;not null" json:"body"`
	SentAt       time.Time  `gorm:"not null" json:"sent_at"`
	ReadAt       *time.Time `json:"read_at"`

	Sender    *User `gorm:"foreignKey:FromUsername;references:Username;constraint:OnDelete:RESTRICT" json:"-"`
	Recipient *User `gorm:"foreignKey:ToUsername;references:Username;constraint:OnDelete:RESTRICT" json:"-"`
}

// Participant reports whether username is the sender or the recipient.
func (m Message) Participant(username string) bool {
	return username != "" && (m.FromUsername == username || m.ToUsername == username)
}
