package api

import (
	"fmt"
	"net/http"

	"support-chat/auth"
	"support-chat/domain/chat"
	"support-chat/domain/presence"
	"support-chat/errors"

	"github.com/gorilla/mux"
)

type heartbeatRequest struct {
	DeviceInfo string `json:"device_info"`
}

type signalRequest struct {
	Signal     string `json:"signal"`
	DeviceInfo string `json:"device_info"`
}

type userStatusRequest struct {
	UserID     string `json:"user_id"`
	IsOnline   bool   `json:"is_online"`
	DeviceInfo string `json:"device_info"`
}

type onlineUser struct {
	UserID       string `json:"user_id"`
	LastActivity string `json:"last_activity"`
}

// presenceUser is the lease owner of the caller. Guests have none.
func presenceUser(actor auth.Actor) (string, error) {
	if actor.UserID == "" {
		return "", fmt.Errorf("%w: presence needs an authenticated user", errors.ErrUnauthenticated)
	}
	return actor.UserID, nil
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, err := presenceUser(auth.ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body heartbeatRequest
	if r.ContentLength != 0 {
		if err = decode(r, &body); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	status, err := s.deps.Presence.Heartbeat(r.Context(), userID, body.DeviceInfo)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request) {
	userID, err := presenceUser(auth.ActorFrom(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body signalRequest
	if err = decode(r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	signal, err := presence.ParseSignal(body.Signal)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	status, err := s.deps.Presence.Signal(r.Context(), userID, signal, body.DeviceInfo)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// updateUserStatus sets the caller's own status. Administrators may set
// anyone's.
func (s *Server) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	userID, err := presenceUser(actor)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body userStatusRequest
	if err = decode(r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if body.UserID != "" && body.UserID != userID {
		if actor.Kind != chat.SenderAdministrator {
			writeError(w, r, s.log, errors.ErrForbiddenActor)
			return
		}
		userID = body.UserID
	}
	status, err := s.deps.Presence.UpdateStatus(r.Context(), userID, body.IsOnline, body.DeviceInfo)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	roster, err := s.deps.Presence.Online(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	users := make([]onlineUser, 0, len(roster))
	for _, st := range roster {
		users = append(users, onlineUser{UserID: st.UserID, LastActivity: st.LastSeenAt.Format(timeFormat)})
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) userStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Presence.Status(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
