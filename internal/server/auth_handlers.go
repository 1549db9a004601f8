package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"monpecule/internal/modules/identity"
)

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	DisplayCurrency string `json:"display_currency"`
}

// handleRegister creates a user with its default account.
// POST /api/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.cfg.Identity.Register(req.Name, req.Email, req.Password, req.DisplayCurrency)
	switch err {
	case nil:
	case identity.ErrEmailTaken:
		s.writeError(w, http.StatusConflict, "email already registered")
		return
	case identity.ErrBadCredentials:
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	default:
		s.log.Error().Err(err).Msg("Registration failed")
		s.writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin verifies credentials and opens a session.
// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := s.cfg.Identity.Login(req.Email, req.Password)
	if err == identity.ErrBadCredentials {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Login failed")
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// handleLogout closes the caller's session.
// POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie("session"); err == nil {
			token = cookie.Value
		}
	}
	if err := s.cfg.Identity.Logout(token); err != nil {
		s.log.Warn().Err(err).Msg("Logout failed")
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleListAccounts lists the caller's accounts.
// GET /api/accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	accounts, err := s.cfg.IdentityRepo.AccountsByUser(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list accounts")
		s.writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	s.writeJSON(w, http.StatusOK, accounts)
}

type accountRequest struct {
	Name string `json:"name"`
}

// handleCreateAccount adds an account for the caller.
// POST /api/accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "account name is required")
		return
	}

	id, err := s.cfg.IdentityRepo.CreateAccount(user.ID, req.Name)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create account")
		s.writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	s.writeJSON(w, http.StatusCreated, identity.Account{ID: id, UserID: user.ID, Name: req.Name})
}

// handleRenameAccount renames one of the caller's accounts.
// PUT /api/accounts/{id}
func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.ownedAccount(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "account name is required")
		return
	}
	if err := s.cfg.IdentityRepo.RenameAccount(accountID, req.Name); err != nil {
		s.log.Error().Err(err).Msg("Failed to rename account")
		s.writeError(w, http.StatusInternalServerError, "failed to rename account")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleDeleteAccount removes an account and, by cascade, its positions.
// DELETE /api/accounts/{id}
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.ownedAccount(w, r)
	if !ok {
		return
	}
	if err := s.cfg.IdentityRepo.DeleteAccount(accountID); err != nil {
		s.log.Error().Err(err).Msg("Failed to delete account")
		s.writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ownedAccount parses {id} and checks the caller owns it.
func (s *Server) ownedAccount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	user := currentUser(r)
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return 0, false
	}
	owner, err := s.cfg.IdentityRepo.AccountOwner(accountID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to check account")
		return 0, false
	}
	if owner == 0 || owner != user.ID {
		s.writeError(w, http.StatusNotFound, "account not found")
		return 0, false
	}
	return accountID, true
}
