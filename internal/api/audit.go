package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/graychat-core/internal/audit"
)

// handleListAudit returns the caller's own audit trail, newest first.
//
// Query parameters:
//   - action: filter by action (register, login, logout, create, update, delete)
//   - entity_type: filter by entity type (user, room)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset (default 0)
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), audit.DefaultLimit)
	if err != nil {
		s.writeServiceError(w, r, validationError("limit must be a non-negative integer"))
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil {
		s.writeServiceError(w, r, validationError("offset must be a non-negative integer"))
		return
	}

	result, err := s.auditLog.List(r.Context(), audit.Filter{
		UserID:     user.ID,
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"entries": result.Entries,
		"total":   result.Total,
		"limit":   result.Limit,
		"offset":  result.Offset,
	})
}

// queryInt parses a non-negative integer query value, returning def when empty.
func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
