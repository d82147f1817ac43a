package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/nerrad567/graychat-core/internal/auth"
	"github.com/nerrad567/graychat-core/internal/room"
)

// ctxKeyUser is the context key for the resolved *auth.User.
const ctxKeyUser contextKey = "user"

// withUser returns a copy of ctx carrying user.
func withUser(ctx context.Context, user *auth.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

// userFromContext returns the identity stored by requireIdentity, or nil.
func userFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(ctxKeyUser).(*auth.User)
	return user
}

// authenticate resolves the caller from the bearer header or session cookie.
func (s *Server) authenticate(r *http.Request) (*auth.User, error) {
	return s.resolver.Resolve(r.Context(), auth.TokenFromRequest(r))
}

// optionalIdentity resolves the caller when a valid credential is present.
// A missing or invalid credential gives (nil, nil); storage failures are
// still returned.
func (s *Server) optionalIdentity(r *http.Request) (*auth.User, error) {
	if user := userFromContext(r.Context()); user != nil {
		return user, nil
	}
	user, err := s.authenticate(r)
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return nil, nil
	}
	return user, err
}

// requireIdentity rejects requests without a resolvable identity and stores
// the user in the request context for the handler.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// authorizeRoom validates roomID, loads the room and applies the access
// policy for action on behalf of the caller. The caller is taken from the
// context when requireIdentity ran, and resolved optionally otherwise.
func (s *Server) authorizeRoom(r *http.Request, roomID string, action room.Action) (*room.Room, error) {
	if err := s.validateID("id", roomID); err != nil {
		return nil, err
	}

	user, err := s.optionalIdentity(r)
	if err != nil {
		return nil, err
	}

	rm, err := s.rooms.GetByID(r.Context(), roomID)
	if err != nil {
		return nil, err
	}

	err = room.Decide(rm, actorID(user), action)
	s.metrics.observeDecision(action, err)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// actorID returns the user's ID, or "" for an anonymous caller.
func actorID(user *auth.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
