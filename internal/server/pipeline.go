package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/tutorlink/chat-service/internal/database"
	"github.com/tutorlink/chat-service/internal/types"
)

// RoleAdmin may exchange session-scoped messages for sessions it does
// not participate in.
const RoleAdmin = "admin"

// Pipeline and routing errors. The error text is the machine-readable
// reason delivered to clients on both transports.
var (
	ErrEmptyContent           = errors.New("empty_content")
	ErrReceiverNotFound       = errors.New("receiver_not_found")
	ErrSelfMessage            = errors.New("self_message")
	ErrInvalidConversation    = errors.New("invalid_conversation")
	ErrSessionNotFound        = errors.New("session_not_found")
	ErrSessionForbidden       = errors.New("session_forbidden")
	ErrPersistenceUnavailable = errors.New("persistence_unavailable")
	ErrServiceUnavailable     = errors.New("service_unavailable")
)

func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrSelfMessage),
		errors.Is(err, ErrInvalidConversation):
		return http.StatusBadRequest
	case errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrPersistenceUnavailable),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Send validates, persists, enriches and fans out one message. Both the
// socket path and the fallback API call it, so every rule holds on both
// transports. On a persistence failure nothing is broadcast.
func (cs *ChatServer) Send(senderId, receiverId int, content string, sessionId int) (*types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	receiver, err := cs.db.GetAccountById(receiverId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiverNotFound
	}
	if err != nil {
		cs.log.Println("receiver lookup:", err)
		return nil, ErrPersistenceUnavailable
	}

	if senderId == receiverId {
		return nil, ErrSelfMessage
	}

	senderRef := cs.resolveRef(senderId)
	receiverRef := types.UserRef{Id: receiver.Id, Name: receiver.Name, Role: receiver.Role}

	if sessionId != 0 {
		if err := cs.authorizeSessionMessage(senderId, receiverId, sessionId, senderRef.Role); err != nil {
			return nil, err
		}
	}

	room := cs.roomFor(senderId, receiverId)
	if room == nil {
		return nil, ErrServiceUnavailable
	}

	req := &sendReq{
		params: database.CreateMessageParams{
			SenderId:   senderId,
			ReceiverId: receiverId,
			SessionId:  sessionId,
			Content:    content,
		},
		sender:   senderRef,
		receiver: receiverRef,
		reply:    make(chan sendResult, 1),
	}

	select {
	case room.sendChan <- req:
	default:
		cs.log.Printf("send channel full on room %q", room.id)
		return nil, ErrServiceUnavailable
	}

	res := <-req.reply
	return res.msg, res.err
}

// MarkRead flips every unread message from senderId to readerId and
// notifies the conversation room and the original sender's personal
// channel. Idempotent: a zero-count call emits nothing.
func (cs *ChatServer) MarkRead(readerId, senderId int) (int, error) {
	count, err := cs.db.MarkConversationRead(readerId, senderId)
	if err != nil {
		cs.log.Println("mark conversation read:", err)
		return 0, ErrPersistenceUnavailable
	}

	if count == 0 {
		return 0, nil
	}

	roomId := RoomId(readerId, senderId)
	note := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			MessagesRead: &MessagesRead{
				RoomId: roomId,
				By:     readerId,
				For:    senderId,
				Count:  count,
			},
		},
	}
	cs.deliver(note, roomId, senderId)
	cs.stats.Incr("NumReadReceipts")

	return count, nil
}

// resolveRef attaches the display projection for an identity. Lookup
// failures degrade to a bare id: delivery correctness outranks display
// completeness.
func (cs *ChatServer) resolveRef(id int) types.UserRef {
	account, err := cs.db.GetAccountById(id)
	if err != nil {
		cs.log.Printf("enrichment lookup for account %d: %v", id, err)
		return types.UserRef{Id: id}
	}

	return types.UserRef{Id: account.Id, Name: account.Name, Role: account.Role}
}

// authorizeSessionMessage restricts session-scoped messages to the two
// session participants, with an admin override for the sender.
func (cs *ChatServer) authorizeSessionMessage(senderId, receiverId, sessionId int, senderRole string) error {
	session, err := cs.db.GetSessionById(sessionId)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		cs.log.Println("session lookup:", err)
		return ErrPersistenceUnavailable
	}

	pair := (senderId == session.StudentId && receiverId == session.TutorId) ||
		(senderId == session.TutorId && receiverId == session.StudentId)
	if pair {
		return nil
	}

	if senderRole == RoleAdmin &&
		(receiverId == session.StudentId || receiverId == session.TutorId) {
		return nil
	}

	return ErrSessionForbidden
}
