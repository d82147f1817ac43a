package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/graychat-core/internal/audit"
	"github.com/nerrad567/graychat-core/internal/room"
)

// ─── Request/Response Types ────────────────────────────────────────

// Allow-list entries are user IDs.
type createRoomRequest struct {
	Name       string   `json:"name" validate:"required,min=3,max=20"`
	Visibility string   `json:"visibility" validate:"required,oneof=public private"`
	AllowList  []string `json:"allowList" validate:"omitempty,dive,uuid"`
}

// updateRoomRequest carries the room ID plus the fields to change. Absent
// fields are left alone; a present empty allowList clears it.
type updateRoomRequest struct {
	ID         string    `json:"id"`
	Name       *string   `json:"name" validate:"omitnil,min=3,max=20"`
	Visibility *string   `json:"visibility" validate:"omitnil,oneof=public private"`
	AllowList  *[]string `json:"allowList" validate:"omitnil,dive,uuid"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleCreateRoom creates a room owned by the caller.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req createRoomRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	rm := &room.Room{
		Name:       req.Name,
		Visibility: room.Visibility(req.Visibility),
		OwnerID:    user.ID,
		AllowList:  req.AllowList,
	}
	if err := s.rooms.Create(r.Context(), rm); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("room created", "room_id", rm.ID, "owner_id", user.ID, "visibility", rm.Visibility)
	s.recorder.Record(audit.ActionCreate, audit.EntityRoom, rm.ID, user.ID, map[string]any{
		"name":       rm.Name,
		"visibility": string(rm.Visibility),
	})
	writeSuccess(w, http.StatusCreated, map[string]any{"room": rm})
}

// handleGetRooms returns one room when ?id= is given, otherwise every room
// the caller may read. Anonymous callers see public rooms only.
func (s *Server) handleGetRooms(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("id"); id != "" {
		rm, err := s.authorizeRoom(r, id, room.ActionRead)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"room": rm})
		return
	}

	user, err := s.optionalIdentity(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	all, err := s.rooms.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	actor := actorID(user)
	visible := make([]room.Room, 0, len(all))
	for i := range all {
		if room.Decide(&all[i], actor, room.ActionRead) == nil {
			visible = append(visible, all[i])
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"rooms": visible})
}

// handleUpdateRoom applies a partial update. Only the owner may manage a
// room; live connections in the room are re-checked afterwards.
func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req updateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.authorizeRoom(r, req.ID, room.ActionManage); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.validateStruct(&req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	patch := room.Patch{Name: req.Name, AllowList: req.AllowList}
	if req.Visibility != nil {
		v := room.Visibility(*req.Visibility)
		patch.Visibility = &v
	}

	updated, err := s.rooms.Update(r.Context(), req.ID, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if !patch.Empty() {
		s.recorder.Record(audit.ActionUpdate, audit.EntityRoom, updated.ID, user.ID, map[string]any{
			"visibility":     string(updated.Visibility),
			"allowListCount": len(updated.AllowList),
		})
		s.revalidateRoom(updated.ID, updated)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"room": updated})
}

// handleDeleteRoom removes a room and everything in it. Ownership is only
// checked when rooms.enforce_delete_ownership is set; otherwise any
// signed-in caller may delete an existing room.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if s.cfg.Rooms.EnforceDeleteOwnership {
		if _, err := s.authorizeRoom(r, id, room.ActionManage); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	} else {
		if err := s.validateID("id", id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if _, err := s.rooms.GetByID(r.Context(), id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	if err := s.rooms.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("room deleted", "room_id", id, "user_id", user.ID)
	s.recorder.Record(audit.ActionDelete, audit.EntityRoom, id, user.ID, nil)
	s.revalidateRoom(id, nil)
	writeSuccess(w, http.StatusOK, map[string]any{"message": "Room deleted successfully"})
}

// handleGetMessages lists a room's messages. Identity is required even for
// public rooms.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeServiceError(w, r, validationError("Please provide the room id"))
		return
	}

	rm, err := s.authorizeRoom(r, id, room.ActionRead)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	msgs, err := s.messages.ListByRoom(r.Context(), rm.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"messages": msgs})
}
