package api

import (
	"fmt"
	"net/http"

	"support-chat/auth"
	"support-chat/domain/search"
	"support-chat/errors"

	"github.com/google/uuid"
)

// search is a staff tool. q accepts the console syntax, explicit query
// parameters win over inline flags.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if !auth.ActorFrom(r.Context()).IsStaff() {
		writeError(w, r, s.log, errors.ErrForbiddenActor)
		return
	}
	params := r.URL.Query()
	query := search.NewSearchQuery(params.Get("q"))
	if raw := params.Get("session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, s.log, fmt.Errorf("%w: invalid session", errors.ErrValidation))
			return
		}
		query.SessionID = &id
	}
	limit, err := queryInt(r, "limit", query.Limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	query.Limit = limit

	result, err := s.deps.Searcher.Search(r.Context(), query.Normalize())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
