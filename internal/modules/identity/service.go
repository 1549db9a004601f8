package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// DefaultAccountName is created for every new user so positions always
// have a home.
const DefaultAccountName = "Principal"

var (
	// ErrEmailTaken is returned when registering an existing email.
	ErrEmailTaken = errors.New("identity: email already registered")
	// ErrBadCredentials is returned on a failed login. Deliberately the
	// same for unknown email and wrong password.
	ErrBadCredentials = errors.New("identity: invalid credentials")
)

// Service implements registration, login, and session resolution.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates an identity service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "identity").Logger(),
	}
}

// Register creates a user with a bcrypt-hashed password and a default
// account.
func (s *Service) Register(name, email, password, displayCurrency string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	if displayCurrency == "" {
		displayCurrency = "EUR"
	}

	existing, err := s.repo.UserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.repo.CreateUser(name, email, string(hash), displayCurrency)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.CreateAccount(userID, DefaultAccountName); err != nil {
		return nil, err
	}

	s.log.Info().Int64("user", userID).Msg("User registered")
	return s.repo.UserByID(userID)
}

// Login verifies credentials and opens a session, returning its token.
func (s *Service) Login(email, password string) (string, *User, error) {
	user, err := s.repo.UserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}

	token := uuid.New().String()
	if err := s.repo.CreateSession(token, user.ID); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout closes the session for a token. Unknown tokens are a no-op.
func (s *Service) Logout(token string) error {
	return s.repo.DeleteSession(token)
}

// Authenticate resolves a session token to its user, nil when the token
// is unknown.
func (s *Service) Authenticate(token string) (*User, error) {
	if token == "" {
		return nil, nil
	}
	userID, err := s.repo.SessionUser(token)
	if err != nil || userID == 0 {
		return nil, err
	}
	return s.repo.UserByID(userID)
}
