package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/tutorlink/chat-service/internal/database"
	"github.com/tutorlink/chat-service/internal/server"
	"github.com/tutorlink/chat-service/internal/types"
)

// welcomeContent is the synthetic first entry returned for a
// conversation with no history. It is fabricated per request and never
// written to the store.
const welcomeContent = "Welcome! This is the start of your conversation. Send a message to get things going."

type SendMessageRequest struct {
	ReceiverId int    `json:"receiver_id"`
	Content    string `json:"content"`
	SessionId  int    `json:"session_id,omitempty"`
}

type MarkReadRequest struct {
	UserId int `json:"user_id"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// userRef resolves the display projection for an identity, degrading
// to a bare id when the profile lookup fails.
func (s *ChatApp) userRef(id int) types.UserRef {
	account, err := s.db.GetAccountById(id)
	if err != nil {
		s.log.Printf("enrichment lookup for account %d: %v", id, err)
		return types.UserRef{Id: id}
	}

	return types.UserRef{Id: account.Id, Name: account.Name, Role: account.Role}
}

func toMessage(m database.Message, refs map[int]types.UserRef) types.Message {
	msg := types.Message{
		Id:        m.Id,
		Sender:    refs[m.SenderId],
		Receiver:  refs[m.ReceiverId],
		Content:   m.Content,
		Read:      m.Read,
		Timestamp: m.CreatedAt,
	}
	if m.SessionId.Valid {
		msg.SessionId = int(m.SessionId.Int64)
	}
	return msg
}

// pipelineError converts a message-pipeline error to the API envelope,
// preserving the machine-readable reason.
func pipelineError(err error) *ApiError {
	return NewReasonError(server.StatusCode(err), err.Error())
}

func (s *ChatApp) getConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partnerId, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if partnerId == userId {
		errResp := pipelineError(server.ErrInvalidConversation)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partner, err := s.db.GetAccountById(partnerId)
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

	messages, err := s.db.GetConversation(userId, partnerId)
	if err != nil {
		s.log.Println("get conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partnerRef := types.UserRef{Id: partner.Id, Name: partner.Name, Role: partner.Role}
	refs := map[int]types.UserRef{
		userId:    s.userRef(userId),
		partnerId: partnerRef,
	}

	if len(messages) == 0 {
		s.writeJson(w, http.StatusOK, []types.Message{{
			Sender:    partnerRef,
			Receiver:  refs[userId],
			Content:   welcomeContent,
			Read:      true,
			Timestamp: server.Now(),
		}})
		return
	}

	conversation := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		conversation = append(conversation, toMessage(m, refs))
	}

	s.writeJson(w, http.StatusOK, conversation)
}

func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.cs.Send(userId, req.ReceiverId, req.Content, req.SessionId)
	if err != nil {
		errResp := pipelineError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.cs.MarkRead(userId, req.UserId)
	if err != nil {
		errResp := pipelineError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *ChatApp) unreadCount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.UnreadCount(userId)
	if err != nil {
		s.log.Println("unread count:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *ChatApp) getConversationSummaries(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbSummaries, err := s.db.ConversationSummaries(userId)
	if err != nil {
		s.log.Println("conversation summaries:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	refs := map[int]types.UserRef{userId: s.userRef(userId)}
	summaries := make([]types.ConversationSummary, 0, len(dbSummaries))
	for _, dbSum := range dbSummaries {
		if _, ok := refs[dbSum.PartnerId]; !ok {
			refs[dbSum.PartnerId] = s.userRef(dbSum.PartnerId)
		}

		summaries = append(summaries, types.ConversationSummary{
			Partner:     refs[dbSum.PartnerId],
			LastMessage: toMessage(dbSum.LastMessage, refs),
			UnreadCount: dbSum.UnreadCount,
		})
	}

	s.writeJson(w, http.StatusOK, summaries)
}

// sessionAccess authorizes session-scoped reads and deletes: the two
// participants, or an admin.
func (s *ChatApp) sessionAccess(userId, sessionId int) (*ApiError, database.Session) {
	session, err := s.db.GetSessionById(sessionId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewNotFoundError(), session
		}
		return NewInternalServerError(err), session
	}

	if userId == session.StudentId || userId == session.TutorId {
		return nil, session
	}

	account, err := s.db.GetAccountById(userId)
	if err != nil || account.Role != server.RoleAdmin {
		return NewForbiddenError(), session
	}

	return nil, session
}

func (s *ChatApp) getSessionMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, err := strconv.Atoi(r.URL.Query().Get("session_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp, _ := s.sessionAccess(userId, sessionId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.db.GetSessionMessages(sessionId)
	if err != nil {
		s.log.Println("get session messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	refs := make(map[int]types.UserRef)
	sessionMessages := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		for _, id := range []int{m.SenderId, m.ReceiverId} {
			if _, ok := refs[id]; !ok {
				refs[id] = s.userRef(id)
			}
		}
		sessionMessages = append(sessionMessages, toMessage(m, refs))
	}

	s.writeJson(w, http.StatusOK, sessionMessages)
}

func (s *ChatApp) deleteConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	partnerId, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteConversation(userId, partnerId); err != nil {
		s.log.Println("delete conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) deleteSessionMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, err := strconv.Atoi(r.URL.Query().Get("session_id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp, _ := s.sessionAccess(userId, sessionId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteSessionMessages(sessionId); err != nil {
		s.log.Println("delete session messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a valid credential must still resolve to an existing account
	account, err := s.db.GetAccountById(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
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

	client := server.NewClient(types.UserRef{
		Id:   account.Id,
		Name: account.Name,
		Role: account.Role,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
