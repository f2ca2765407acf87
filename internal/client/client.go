package client

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tutorlink/chat-service/internal/server"
)

const writeWait = 10 * time.Second

type pendingSend struct {
	otherId   int
	pendingId string
}

// ChatClient holds one live connection and reconciles everything the
// server delivers into per-conversation logs. When no live connection
// is available, callers use the fallback API and feed fetched history
// into the same Conversation logs via LoadHistory.
type ChatClient struct {
	conn   *websocket.Conn
	log    *log.Logger
	selfId int

	mu            sync.Mutex
	nextId        int
	pending       map[int]pendingSend
	conversations map[int]*Conversation

	// OnNotification observes presence, conversation-joined and
	// read-receipt events after they are applied. Optional.
	OnNotification func(n *server.Notification)
	// OnError observes message-level errors after any affected
	// placeholder has been dropped. Optional.
	OnError func(reason string)

	done chan struct{}
}

// Dial opens a live connection, authenticating with the bearer
// credential. The caller must already know its own identity (the
// platform returns it alongside the credential).
func Dial(url, token string, selfId int, logger *log.Logger) (*ChatClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, err
	}

	c := &ChatClient{
		conn:          conn,
		log:           logger,
		selfId:        selfId,
		pending:       make(map[int]pendingSend),
		conversations: make(map[int]*Conversation),
		done:          make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

func (c *ChatClient) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}

// Done is closed when the read loop exits.
func (c *ChatClient) Done() <-chan struct{} {
	return c.done
}

// Conversation returns the reconciled log for the given partner,
// creating it on first use.
func (c *ChatClient) Conversation(otherId int) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation(otherId)
}

func (c *ChatClient) conversation(otherId int) *Conversation {
	conv, ok := c.conversations[otherId]
	if !ok {
		conv = NewConversation(c.selfId, otherId)
		c.conversations[otherId] = conv
	}
	return conv
}

func (c *ChatClient) Join(otherId int) error {
	return c.write(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.reqId(), Timestamp: time.Now().UTC()},
		Join:        &server.Join{UserId: otherId},
	})
}

func (c *ChatClient) Leave(otherId int) error {
	return c.write(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.reqId(), Timestamp: time.Now().UTC()},
		Leave:       &server.Leave{UserId: otherId},
	})
}

// Send inserts an optimistic placeholder and publishes the message.
// The placeholder resolves on the server's ack: replaced in place by
// the stored copy, or dropped on a rejection. It never stays pending
// past the ack.
func (c *ChatClient) Send(receiverId int, content string, sessionId int) (string, error) {
	conv := c.Conversation(receiverId)
	pendingId, err := conv.AddPending(content)
	if err != nil {
		return "", err
	}

	id := c.reqId()
	c.mu.Lock()
	c.pending[id] = pendingSend{otherId: receiverId, pendingId: pendingId}
	c.mu.Unlock()

	err = c.write(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: id, Timestamp: time.Now().UTC()},
		Publish: &server.Publish{
			ReceiverId: receiverId,
			Content:    content,
			SessionId:  sessionId,
		},
	})
	if err != nil {
		conv.Fail(pendingId)
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return "", err
	}

	return pendingId, nil
}

func (c *ChatClient) MarkRead(otherId int) error {
	return c.write(&server.ClientMessage{
		BaseMessage: server.BaseMessage{Id: c.reqId(), Timestamp: time.Now().UTC()},
		Read:        &server.Read{UserId: otherId},
	})
}

func (c *ChatClient) reqId() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextId++
	return c.nextId
}

func (c *ChatClient) write(msg *server.ClientMessage) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, bytes)
}

func (c *ChatClient) readLoop() {
	defer close(c.done)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		var msg server.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *ChatClient) dispatch(msg *server.ServerMessage) {
	switch {
	case msg.Sent != nil:
		c.resolvePending(msg.Id, msg)
	case msg.Message != nil:
		m := *msg.Message
		otherId := m.Sender.Id
		if otherId == c.selfId {
			otherId = m.Receiver.Id
		}
		c.Conversation(otherId).Merge(m)
	case msg.Notification != nil:
		c.applyNotification(msg.Notification)
	case msg.Response != nil:
		if msg.Response.Error != "" {
			c.failPending(msg.Id)
			if c.OnError != nil {
				c.OnError(msg.Response.Error)
			}
		}
	}
}

func (c *ChatClient) applyNotification(n *server.Notification) {
	if mr := n.MessagesRead; mr != nil {
		otherId := mr.By
		if otherId == c.selfId {
			otherId = mr.For
		}
		c.Conversation(otherId).MarkRead(mr.By, mr.For)
	}

	if c.OnNotification != nil {
		c.OnNotification(n)
	}
}

func (c *ChatClient) resolvePending(reqId int, msg *server.ServerMessage) {
	c.mu.Lock()
	p, ok := c.pending[reqId]
	if ok {
		delete(c.pending, reqId)
	}
	conv := c.conversation(msgOther(c.selfId, msg))
	c.mu.Unlock()

	if ok {
		conv.Confirm(p.pendingId, *msg.Sent)
		return
	}

	// ack without a tracked placeholder (e.g. reconnect): merge
	conv.Merge(*msg.Sent)
}

func (c *ChatClient) failPending(reqId int) {
	c.mu.Lock()
	p, ok := c.pending[reqId]
	if ok {
		delete(c.pending, reqId)
	}
	var conv *Conversation
	if ok {
		conv = c.conversation(p.otherId)
	}
	c.mu.Unlock()

	if ok {
		conv.Fail(p.pendingId)
	}
}

func msgOther(selfId int, msg *server.ServerMessage) int {
	if msg.Sent.Sender.Id == selfId {
		return msg.Sent.Receiver.Id
	}
	return msg.Sent.Sender.Id
}
