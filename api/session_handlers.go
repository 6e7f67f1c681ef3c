package api

import (
	"net/http"

	"support-chat/auth"
	"support-chat/domain/chat"
	"support-chat/errors"

	"github.com/google/uuid"
)

type createSessionResponse struct {
	SessionID string       `json:"session_id"`
	Session   chat.Session `json:"session"`
	Message   chat.Message `json:"message"`
}

// createSession is open to guests. An authenticated customer is recorded as
// the originator.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var cmd chat.CreateSessionCommand
	if err := decode(r, &cmd); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if actor.Kind == chat.SenderCustomer && actor.UserID != "" {
		cmd.UserID = actor.UserRef()
	}
	session, first, err := s.deps.Lifecycle.Start(r.Context(), cmd)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID.String(), Session: session, Message: first})
}

// listSessions is the activity board for staff. Customers see their own
// sessions, guests have no list.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	var filter chat.SessionFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := chat.ParseStatus(raw)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		filter.Status = &status
	}
	if !actor.IsStaff() {
		if actor.UserID == "" {
			writeError(w, r, s.log, errors.ErrForbiddenActor)
			return
		}
		filter.UserID = actor.UserRef()
	}
	board, err := s.deps.Activity.Board(r.Context(), filter)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	session, err := s.deps.Lifecycle.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	messages, err := s.deps.Messages.List(r.Context(), id)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// sendMessage posts as the caller: the sender kind comes from the token,
// never from the body.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body sendMessageRequest
	if err = decode(r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	msg, err := s.deps.Messages.Send(r.Context(), chat.SendMessageCommand{
		SessionID: id,
		Sender:    actor.Kind,
		UserID:    actor.UserRef(),
		Content:   body.Content,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	n, err := s.deps.Messages.MarkRead(r.Context(), id, actor.Kind)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (s *Server) unread(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	n, err := s.deps.Messages.UnreadFor(r.Context(), id, actor.Kind)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

type changeStatusRequest struct {
	Status           string  `json:"status"`
	ExpectedRevision *uint64 `json:"expected_revision,omitempty"`
}

type changeStatusResponse struct {
	Session chat.Session  `json:"session"`
	Notice  *chat.Message `json:"notice,omitempty"`
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	var body changeStatusRequest
	if err = decode(r, &body); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	status, err := chat.ParseStatus(body.Status)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	session, notice, err := s.deps.Lifecycle.ChangeStatus(r.Context(), chat.ChangeStatusCommand{
		SessionID:        id,
		Status:           status,
		Actor:            actor.Kind,
		ExpectedRevision: body.ExpectedRevision,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	res := changeStatusResponse{Session: session}
	if notice.ID != uuid.Nil {
		res.Notice = &notice
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if !auth.ActorFrom(r.Context()).IsStaff() {
		writeError(w, r, s.log, errors.ErrForbiddenActor)
		return
	}
	stats, err := s.deps.Lifecycle.Stats(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
