package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/graychat-core/internal/audit"
	"github.com/nerrad567/graychat-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password" validate:"required,min=8,max=20"`
	Email    string `json:"email" validate:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=20"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleRegister creates an account and signs the new user in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeAndTrim(r, &req, &req.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	if _, err := s.users.FindByUsernameOrEmail(ctx, req.Username, req.Email); err == nil {
		s.writeServiceError(w, r, auth.ErrUserExists)
		return
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		s.writeServiceError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	user := &auth.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.startSession(ctx, w, user.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.recorder.Record(audit.ActionRegister, audit.EntityUser, user.ID, user.ID, nil)
	writeSuccess(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
	})
}

// handleLogin verifies credentials and issues a session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeAndTrim(r, &req, &req.Email); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			err = auth.ErrInvalidCredentials
		}
		s.writeServiceError(w, r, err)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		s.logger.Info("login rejected", "user_id", user.ID)
		s.writeServiceError(w, r, auth.ErrInvalidCredentials)
		return
	}

	if err := s.startSession(ctx, w, user.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.recorder.Record(audit.ActionLogin, audit.EntityUser, user.ID, user.ID, nil)
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "User logged in successfully",
	})
}

// handleLogout revokes the presented session and clears the cookie.
// Revoking a session that is already gone still succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if err := s.sessions.Revoke(r.Context(), auth.TokenFromRequest(r), user.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.clearSessionCookie(w)
	s.recorder.Record(audit.ActionLogout, audit.EntityUser, user.ID, user.ID, nil)
	writeSuccess(w, http.StatusOK, map[string]any{
		"message": "logged out successfully",
	})
}

// handleCheck reports whether the caller is signed in. A missing or
// invalid credential is a normal answer, not an error.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	user, err := s.optionalIdentity(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"loggedIn": user != nil,
		"user":     user,
	})
}

// ─── Helpers ───────────────────────────────────────────────────────

// decodeAndTrim decodes the body, trims the listed fields and validates.
func (s *Server) decodeAndTrim(r *http.Request, dst any, trim ...*string) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	for _, f := range trim {
		*f = strings.TrimSpace(*f)
	}
	return s.validateStruct(dst)
}

// startSession issues a credential, records it and sets the cookie.
func (s *Server) startSession(ctx context.Context, w http.ResponseWriter, userID string) error {
	token, expires, err := s.codec.Issue(userID)
	if err != nil {
		return fmt.Errorf("issuing credential: %w", err)
	}
	if err := s.sessions.Record(ctx, token, userID, expires); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	s.setSessionCookie(w, token, expires)
	return nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}
