// Package identity handles users, their accounts, and session tokens.
package identity

import "time"

// User is a registered owner of accounts and positions.
type User struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	DisplayCurrency string    `json:"display_currency"`
	LastRefresh     time.Time `json:"last_refresh"`
}

// Account groups positions. Purely organizational.
type Account struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Session maps a bearer token to a user.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
