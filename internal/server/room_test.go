package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tutorlink/chat-service/internal/database"
)

func TestJoinConversation(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	go cs.Run()
	defer shutdownChatServer(t, cs)

	alice := newTestClient(cs, 1)
	bobTab := newTestClient(cs, 2)
	cs.addClient(alice)
	cs.addClient(bobTab)

	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Join:        &Join{UserId: 2},
		UserId:      1,
		client:      alice,
	}
	alice.joinConversation(msg)

	ack := receiveMessage(t, alice)
	assert.Equal(t, 1, ack.Id, "expected the ack to carry the request id")
	assert.NotNil(t, ack.Response, "expected a response")
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode, "expected a successful join")
	assert.Equal(t, RoomId(1, 2), ack.Response.Data["room_id"], "expected the conversation id")

	room, ok := cs.getRoom(RoomId(1, 2))
	assert.True(t, ok, "expected the room to be live")
	assert.Equal(t, 1, room.clientCount(), "expected one joined connection")
	assert.Equal(t, room, alice.getRoom(room.id), "expected the connection to track the room")

	// both participants are told the conversation is active
	note := receiveMessage(t, alice)
	assert.NotNil(t, note.Notification.ConversationJoined, "expected a joined notification")
	assert.Equal(t, RoomId(1, 2), note.Notification.ConversationJoined.RoomId, "expected the conversation id")
	assert.Equal(t, 1, note.Notification.ConversationJoined.UserId, "expected the joining identity")

	note = receiveMessage(t, bobTab)
	assert.NotNil(t, note.Notification.ConversationJoined, "expected the peer to be notified")
	assert.Equal(t, 1, note.Notification.ConversationJoined.UserId, "expected the joining identity")
}

func TestJoinConversation_Self(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})

	alice := newTestClient(cs, 1)
	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Join:        &Join{UserId: 1},
		UserId:      1,
		client:      alice,
	}
	alice.joinConversation(msg)

	resp := receiveMessage(t, alice)
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected a bad request")
	assert.Equal(t, ErrInvalidConversation.Error(), resp.Response.Error, "expected the conversation error reason")
}

func TestLeaveConversation(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})
	go cs.Run()
	defer shutdownChatServer(t, cs)

	alice := newTestClient(cs, 1)
	cs.addClient(alice)

	joinMsg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Join:        &Join{UserId: 2},
		UserId:      1,
		client:      alice,
	}
	alice.joinConversation(joinMsg)
	receiveMessage(t, alice) // join ack
	receiveMessage(t, alice) // joined notification

	leaveMsg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 2, Timestamp: Now()},
		Leave:       &Leave{UserId: 2},
		UserId:      1,
		client:      alice,
	}
	alice.leaveConversation(leaveMsg)

	ack := receiveMessage(t, alice)
	assert.Equal(t, 2, ack.Id, "expected the ack to carry the request id")
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode, "expected a successful leave")
	assert.Nil(t, alice.getRoom(RoomId(1, 2)), "expected the connection to forget the room")

	room, ok := cs.getRoom(RoomId(1, 2))
	assert.True(t, ok, "expected the room to stay loaded until its idle timeout")
	assert.Zero(t, room.clientCount(), "expected no joined connections")
}

func TestLeaveConversation_NeverJoined(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})

	alice := newTestClient(cs, 1)
	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 3, Timestamp: Now()},
		Leave:       &Leave{UserId: 2},
		UserId:      1,
		client:      alice,
	}
	alice.leaveConversation(msg)

	ack := receiveMessage(t, alice)
	assert.Equal(t, 3, ack.Id, "expected the ack to carry the request id")
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode, "expected leaving an unjoined conversation to succeed")
}

func TestPublish(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetAccountById", 2).Return(database.Account{Id: 2, Name: "John Smith", Role: "tutor"}, nil)
	db.On("GetAccountById", 1).Return(database.Account{Id: 1, Name: "Jane Doe", Role: "student"}, nil)
	db.On("CreateMessage", database.CreateMessageParams{
		SenderId:   1,
		ReceiverId: 2,
		Content:    "hello",
	}).Return(database.Message{Id: 7, SenderId: 1, ReceiverId: 2, Content: "hello", CreatedAt: Now()}, nil)

	cs := newTestChatServer(t, db)
	go cs.Run()
	defer shutdownChatServer(t, cs)

	alice := newTestClient(cs, 1)
	cs.addClient(alice)

	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 4, Timestamp: Now()},
		Publish:     &Publish{ReceiverId: 2, Content: "hello"},
		UserId:      1,
		client:      alice,
	}
	alice.publish(msg)

	// the broadcast copy lands on the personal channel before publish
	// returns, then the direct ack is queued
	first := receiveMessage(t, alice)
	assert.NotNil(t, first.Message, "expected the broadcast copy")
	assert.Equal(t, 7, first.Message.Id, "expected the persisted message")

	ack := receiveMessage(t, alice)
	assert.Equal(t, 4, ack.Id, "expected the ack to carry the request id")
	assert.NotNil(t, ack.Sent, "expected a sent confirmation")
	assert.Equal(t, 7, ack.Sent.Id, "expected the persisted id in the confirmation")
}

func TestPublish_ValidationError(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{})

	alice := newTestClient(cs, 1)
	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 5, Timestamp: Now()},
		Publish:     &Publish{ReceiverId: 2, Content: "  "},
		UserId:      1,
		client:      alice,
	}
	alice.publish(msg)

	resp := receiveMessage(t, alice)
	assert.Equal(t, 5, resp.Id, "expected the error to carry the request id")
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected a bad request")
	assert.Equal(t, ErrEmptyContent.Error(), resp.Response.Error, "expected the empty content reason")
}

func TestClientMarkRead(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("MarkConversationRead", 1, 2).Return(2, nil)

	cs := newTestChatServer(t, db)

	alice := newTestClient(cs, 1)
	msg := &ClientMessage{
		BaseMessage: BaseMessage{Id: 6, Timestamp: Now()},
		Read:        &Read{UserId: 2},
		UserId:      1,
		client:      alice,
	}
	alice.markRead(msg)

	ack := receiveMessage(t, alice)
	assert.Equal(t, 6, ack.Id, "expected the ack to carry the request id")
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode, "expected a successful mark read")
	assert.Equal(t, 2, ack.Response.Data["count"], "expected the flipped count")
}
