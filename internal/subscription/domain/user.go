package domain

import "time"

// User is a channel customer identified by their Telegram numeric ID.
type User struct {
	TelegramID int64
	Username   string
	Email      string
	CreatedAt  time.Time
}

// NewUser creates a user record.
func NewUser(telegramID int64, username, email string) (*User, error) {
	if telegramID == 0 {
		return nil, ErrInvalidUserID
	}
	return &User{
		TelegramID: telegramID,
		Username:   username,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
