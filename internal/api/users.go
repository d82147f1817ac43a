package api

import (
	"net/http"

	"github.com/nerrad567/graychat-core/internal/audit"
	"github.com/nerrad567/graychat-core/internal/auth"
)

// editUserRequest is a partial update; absent fields are left alone and a
// present field is validated even when empty.
type editUserRequest struct {
	Username *string `json:"username" validate:"omitnil,min=3,max=20"`
	Password *string `json:"password" validate:"omitnil,min=8,max=20"`
}

// handleEditUser changes the caller's username and/or password.
func (s *Server) handleEditUser(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req editUserRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	patch := auth.UserPatch{Username: req.Username}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		patch.PasswordHash = &hash
	}

	updated, err := s.users.Update(r.Context(), user.ID, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if !patch.Empty() {
		var fields []string
		if patch.Username != nil {
			fields = append(fields, "username")
		}
		if patch.PasswordHash != nil {
			fields = append(fields, "password")
		}
		s.recorder.Record(audit.ActionUpdate, audit.EntityUser, user.ID, user.ID, map[string]any{"fields": fields})
	}
	writeSuccess(w, http.StatusOK, map[string]any{"user": updated})
}
