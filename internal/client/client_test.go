package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tutorlink/chat-service/internal/server"
	"github.com/tutorlink/chat-service/internal/testutil"
)

func newTestChatClient(t *testing.T) *ChatClient {
	return &ChatClient{
		log:           testutil.TestLogger(t),
		selfId:        1,
		pending:       make(map[int]pendingSend),
		conversations: make(map[int]*Conversation),
		done:          make(chan struct{}),
	}
}

func TestDispatch_SentAckConfirmsPlaceholder(t *testing.T) {
	c := newTestChatClient(t)

	conv := c.Conversation(2)
	pendingId, err := conv.AddPending("hello")
	assert.NoError(t, err, "expected placeholder insertion to succeed")
	c.pending[7] = pendingSend{otherId: 2, pendingId: pendingId}

	sent := message(12, 1, 2, "hello", time.Now().UTC())
	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Id: 7, Timestamp: sent.Timestamp},
		Sent:        &sent,
	})

	entries := conv.Entries()
	assert.Len(t, entries, 1, "expected the placeholder to resolve in place")
	assert.Equal(t, 12, entries[0].Id, "expected the stored copy")
	assert.Zero(t, conv.PendingCount(), "expected no unresolved placeholders")
	assert.Empty(t, c.pending, "expected the request to be untracked")
}

func TestDispatch_SentAckWithoutPlaceholder(t *testing.T) {
	c := newTestChatClient(t)

	sent := message(12, 1, 2, "hello", time.Now().UTC())
	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Id: 7, Timestamp: sent.Timestamp},
		Sent:        &sent,
	})

	entries := c.Conversation(2).Entries()
	assert.Len(t, entries, 1, "expected the ack to merge as a normal message")
	assert.Equal(t, 12, entries[0].Id, "expected the stored copy")
}

func TestDispatch_MessageRouting(t *testing.T) {
	c := newTestChatClient(t)
	now := time.Now().UTC()

	// inbound from a partner routes by sender
	inbound := message(1, 2, 1, "hi", now)
	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Timestamp: now},
		Message:     &inbound,
	})

	// own broadcast copy from another device routes by receiver
	outbound := message(2, 1, 3, "hey", now)
	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Timestamp: now},
		Message:     &outbound,
	})

	assert.Len(t, c.Conversation(2).Entries(), 1, "expected the inbound message in the sender's log")
	assert.Len(t, c.Conversation(3).Entries(), 1, "expected the outbound copy in the receiver's log")
}

func TestDispatch_ErrorDropsPlaceholder(t *testing.T) {
	c := newTestChatClient(t)

	conv := c.Conversation(2)
	pendingId, err := conv.AddPending("hello")
	assert.NoError(t, err, "expected placeholder insertion to succeed")
	c.pending[7] = pendingSend{otherId: 2, pendingId: pendingId}

	var reason string
	c.OnError = func(r string) { reason = r }

	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Id: 7, Timestamp: time.Now().UTC()},
		Response: &server.Response{
			ResponseCode: 404,
			Error:        "receiver_not_found",
		},
	})

	assert.Empty(t, conv.Entries(), "expected the rejected placeholder to disappear")
	assert.Empty(t, c.pending, "expected the request to be untracked")
	assert.Equal(t, "receiver_not_found", reason, "expected the error callback to fire")
}

func TestDispatch_ReadReceipt(t *testing.T) {
	c := newTestChatClient(t)
	now := time.Now().UTC()

	conv := c.Conversation(2)
	conv.Merge(message(1, 1, 2, "did you get this?", now))

	var notified *server.Notification
	c.OnNotification = func(n *server.Notification) { notified = n }

	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Timestamp: now},
		Notification: &server.Notification{
			MessagesRead: &server.MessagesRead{RoomId: "1:2", By: 2, For: 1, Count: 1},
		},
	})

	entries := conv.Entries()
	assert.True(t, entries[0].Read, "expected the outbound message to flip to read")
	assert.NotNil(t, notified, "expected the notification callback to fire")
	assert.NotNil(t, notified.MessagesRead, "expected the receipt to be surfaced")
}

func TestDispatch_PresenceNotification(t *testing.T) {
	c := newTestChatClient(t)

	var notified *server.Notification
	c.OnNotification = func(n *server.Notification) { notified = n }

	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Timestamp: time.Now().UTC()},
		Notification: &server.Notification{
			Presence: &server.Presence{UserId: 2, Online: true},
		},
	})

	assert.NotNil(t, notified, "expected the notification callback to fire")
	assert.NotNil(t, notified.Presence, "expected the presence event to be surfaced")
	assert.True(t, notified.Presence.Online, "expected an online event")
}

func TestDispatch_SuccessResponseLeavesPendingAlone(t *testing.T) {
	c := newTestChatClient(t)

	conv := c.Conversation(2)
	pendingId, err := conv.AddPending("hello")
	assert.NoError(t, err, "expected placeholder insertion to succeed")
	c.pending[7] = pendingSend{otherId: 2, pendingId: pendingId}

	c.dispatch(&server.ServerMessage{
		BaseMessage: server.BaseMessage{Id: 3, Timestamp: time.Now().UTC()},
		Response:    &server.Response{ResponseCode: 200},
	})

	assert.Equal(t, 1, conv.PendingCount(), "expected an unrelated ok response to change nothing")
	assert.Len(t, c.pending, 1, "expected the request to stay tracked")
}
