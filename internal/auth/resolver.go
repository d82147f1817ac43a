package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CookieName is the session cookie set on login and registration.
const CookieName = "jwt"

// Resolver turns a raw credential into the user it belongs to.
type Resolver struct {
	codec    *Codec
	users    UserRepository
	sessions SessionRepository
	strict   bool
}

// NewResolver wires a Resolver. With strict set, a credential must also
// have a live session record, so logout takes effect immediately.
func NewResolver(codec *Codec, users UserRepository, sessions SessionRepository, strict bool) *Resolver {
	return &Resolver{codec: codec, users: users, sessions: sessions, strict: strict}
}

// Resolve returns the user for token. Anything that does not identify a
// user gives ErrNotAuthenticated; storage failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" || token == "null" {
		return nil, ErrNotAuthenticated
	}

	userID, err := r.codec.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	if r.strict {
		ok, err := r.sessions.Exists(ctx, token, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: no live session", ErrNotAuthenticated)
		}
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
		}
		return nil, err
	}
	return user, nil
}

// TokenFromRequest reads the credential from "Authorization: Bearer",
// falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return TokenFromCookie(r)
}

// TokenFromCookie reads the credential from the session cookie only.
func TokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
