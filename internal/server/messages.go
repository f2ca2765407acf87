package server

import (
	"net/http"
	"time"

	"github.com/tutorlink/chat-service/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	Read    *Read    `json:"read,omitempty"`
	UserId  int      `json:"-"`
	client  *Client  `json:"-"`
}

// Join subscribes the connection to the conversation with UserId.
type Join struct {
	UserId int `json:"user_id"`
}

type Leave struct {
	UserId int `json:"user_id"`
}

type Publish struct {
	ReceiverId int    `json:"receiver_id"`
	Content    string `json:"content"`
	SessionId  int    `json:"session_id,omitempty"`
}

// Read marks every unread message from UserId to the caller as read.
type Read struct {
	UserId int `json:"user_id"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Sent         *types.Message `json:"sent,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	Presence           *Presence           `json:"presence,omitempty"`
	ConversationJoined *ConversationJoined `json:"conversation_joined,omitempty"`
	MessagesRead       *MessagesRead       `json:"messages_read,omitempty"`
}

type Presence struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

type ConversationJoined struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

// MessagesRead announces a read-receipt batch: By read Count messages
// originally sent by For.
type MessagesRead struct {
	RoomId string `json:"room_id"`
	By     int    `json:"by"`
	For    int    `json:"for"`
	Count  int    `json:"count"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

// SentAck is the direct confirmation to the originating connection,
// distinct from the broadcast copy; clients use it to resolve their
// pending placeholder.
func SentAck(id int, msg *types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Sent: msg,
	}
}

// ErrorMessage maps a pipeline error to a response carrying its
// machine-readable reason string.
func ErrorMessage(id int, err error) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: StatusCode(err),
			Error:        err.Error(),
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
