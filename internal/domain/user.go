package domain

import "time"

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	SessionVersion  int64      `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}
