package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/npezzotti/go-teamchat/internal/types"
)

func (s *TeamChatApp) writeJson(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Println("failed to encode response:", err)
	}
}

type presenceResponse struct {
	OrganizationId string                             `json:"organizationId"`
	Presence       map[string]realtime.PresenceStatus `json:"presence"`
}

// getPresence answers "who is online" from the in-memory tracker, no
// network hop.
func (s *TeamChatApp) getPresence(w http.ResponseWriter, r *http.Request) {
	organizationId := r.URL.Query().Get("organizationId")
	if organizationId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, presenceResponse{
		OrganizationId: organizationId,
		Presence:       s.rt.PresenceSnapshot(organizationId),
	})
}

func (s *TeamChatApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check failed:", err)
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// serveWs performs the subscription handshake: authenticate (the auth
// middleware has already run), resolve the caller, verify channel
// membership or session participation, and only then upgrade and
// register. Rejections close without a frame and the server never
// retries.
func (s *TeamChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q := r.URL.Query()
	scope := realtime.SubscriptionScope{
		ChannelId:      q.Get("channelId"),
		SessionId:      q.Get("sessionId"),
		OrganizationId: q.Get("organizationId"),
		Notifications:  q.Get("notifications") == "true",
	}

	if scope.OrganizationId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if scope.ChannelId != "" {
		if errResp := s.authorizeChannel(scope.ChannelId, scope.OrganizationId, userId); errResp != nil {
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if scope.SessionId != "" {
		if errResp := s.authorizeSession(scope.SessionId, scope.OrganizationId, userId); errResp != nil {
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	sub := realtime.NewSubscription(types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
	}, conn, s.rt, s.log, scope)

	s.rt.RegisterSubscription(sub)
	go sub.Write()
	go sub.Read()
}

func (s *TeamChatApp) authorizeChannel(channelId, organizationId, userId string) *ApiError {
	channel, err := s.db.GetChannelById(channelId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError()
		}
		return NewInternalServerError(err)
	}

	if channel.OrganizationId != organizationId {
		return NewForbiddenError()
	}

	member, err := s.db.IsChannelMember(channelId, userId)
	if err != nil {
		return NewInternalServerError(err)
	}
	if !member {
		return NewForbiddenError()
	}

	return nil
}

func (s *TeamChatApp) authorizeSession(sessionId, organizationId, userId string) *ApiError {
	session, err := s.db.GetSessionById(sessionId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError()
		}
		return NewInternalServerError(err)
	}

	if session.OrganizationId != organizationId {
		return NewForbiddenError()
	}

	participant, err := s.db.IsSessionParticipant(sessionId, userId)
	if err != nil {
		return NewInternalServerError(err)
	}
	if !participant {
		return NewForbiddenError()
	}

	return nil
}
