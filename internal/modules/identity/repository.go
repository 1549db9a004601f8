package identity

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository persists users, accounts, and sessions.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an identity repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "identity").Logger(),
	}
}

// CreateUser inserts a user and returns its id.
func (r *Repository) CreateUser(name, email, passwordHash, displayCurrency string) (int64, error) {
	result, err := r.db.Exec(`INSERT INTO users (name, email, password_hash, display_currency)
		VALUES (?, ?, ?, ?)`, name, email, passwordHash, displayCurrency)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return result.LastInsertId()
}

// UserByEmail returns the user with the given email, nil when absent.
func (r *Repository) UserByEmail(email string) (*User, error) {
	return r.userBy(`email = ?`, email)
}

// UserByID returns the user with the given id, nil when absent.
func (r *Repository) UserByID(id int64) (*User, error) {
	return r.userBy(`id = ?`, id)
}

func (r *Repository) userBy(where string, arg interface{}) (*User, error) {
	var u User
	var lastRefresh string
	err := r.db.QueryRow(`SELECT id, name, email, password_hash, display_currency, last_refresh
		FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.DisplayCurrency, &lastRefresh)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, lastRefresh); err == nil {
		u.LastRefresh = t
	}
	return &u, nil
}

// UpdateDisplayCurrency sets a user's preferred display currency.
func (r *Repository) UpdateDisplayCurrency(userID int64, currency string) error {
	_, err := r.db.Exec(`UPDATE users SET display_currency = ? WHERE id = ?`, currency, userID)
	if err != nil {
		return fmt.Errorf("failed to update display currency: %w", err)
	}
	return nil
}

// TouchLastRefresh stamps now on a user, or on all users when userID is
// zero (scheduled all-positions refresh).
func (r *Repository) TouchLastRefresh(userID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var err error
	if userID == 0 {
		_, err = r.db.Exec(`UPDATE users SET last_refresh = ?`, now)
	} else {
		_, err = r.db.Exec(`UPDATE users SET last_refresh = ? WHERE id = ?`, now, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to touch last refresh: %w", err)
	}
	return nil
}

// CreateAccount inserts an account for a user.
func (r *Repository) CreateAccount(userID int64, name string) (int64, error) {
	result, err := r.db.Exec(`INSERT INTO accounts (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create account: %w", err)
	}
	return result.LastInsertId()
}

// AccountsByUser lists a user's accounts.
func (r *Repository) AccountsByUser(userID int64) ([]Account, error) {
	rows, err := r.db.Query(`SELECT id, user_id, name FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AccountOwner returns the owning user of an account, zero when absent.
func (r *Repository) AccountOwner(accountID int64) (int64, error) {
	var userID int64
	err := r.db.QueryRow(`SELECT user_id FROM accounts WHERE id = ?`, accountID).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get account owner: %w", err)
	}
	return userID, nil
}

// RenameAccount updates an account's name.
func (r *Repository) RenameAccount(accountID int64, name string) error {
	_, err := r.db.Exec(`UPDATE accounts SET name = ? WHERE id = ?`, name, accountID)
	if err != nil {
		return fmt.Errorf("failed to rename account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account. Positions cascade.
func (r *Repository) DeleteAccount(accountID int64) error {
	_, err := r.db.Exec(`DELETE FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// CreateSession stores a session token.
func (r *Repository) CreateSession(token string, userID int64) error {
	_, err := r.db.Exec(`INSERT INTO sessions (token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// SessionUser resolves a token to a user id, zero when unknown.
func (r *Repository) SessionUser(token string) (int64, error) {
	var userID int64
	err := r.db.QueryRow(`SELECT user_id FROM sessions WHERE token = ?`, token).Scan(&userID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve session: %w", err)
	}
	return userID, nil
}

// DeleteSession removes a session token.
func (r *Repository) DeleteSession(token string) error {
	_, err := r.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
