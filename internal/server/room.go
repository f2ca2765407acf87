package server

import (
	"log"
	"sync"
	"time"

	"github.com/tutorlink/chat-service/internal/database"
	"github.com/tutorlink/chat-service/internal/types"
)

const idleRoomTimeout = time.Minute

// sendReq carries a validated, enriched message into the room actor,
// which persists and fans it out. Routing every send for a pair through
// its room serializes the persist/broadcast step, so delivery order
// matches persisted order even with concurrent senders.
type sendReq struct {
	params   database.CreateMessageParams
	sender   types.UserRef
	receiver types.UserRef
	reply    chan sendResult
}

type sendResult struct {
	msg *types.Message
	err error
}

// Room is an ephemeral two-party conversation. It exists only while at
// least one connection is joined or a send was recently routed through
// it; no room state is persisted.
type Room struct {
	id           string
	participants [2]int
	cs           *ChatServer
	joinChan     chan *ClientMessage
	leaveChan    chan *ClientMessage
	sendChan     chan *sendReq
	clients      map[*Client]struct{}
	userMap      map[int]map[*Client]struct{}
	clientLock   sync.RWMutex
	log          *log.Logger
	// killTimer unloads the room once it has been idle
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case req := <-r.sendChan:
			r.handleSend(req)
		case <-r.killTimer.C:
			r.log.Printf("room %q timed out", r.id)
			r.cs.unloadRoomChan <- r.id
		case <-r.exit:
			r.handleExit()
			return
		}
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	r.addClient(c)

	c.queueMessage(NoErrOK(join.Id, map[string]any{
		"room_id": r.id,
	}))

	// both participants learn the conversation is active on their
	// personal channels, so other devices see it without joining
	note := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			ConversationJoined: &ConversationJoined{
				RoomId: r.id,
				UserId: c.user.Id,
			},
		},
	}
	r.cs.deliver(note, "", r.participants[0], r.participants[1])
}

// handleLeave is idempotent: leaving a room the connection is not in
// acknowledges without error.
func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)

	if leaveMsg.client != nil {
		leaveMsg.client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}
}

func (r *Room) handleSend(req *sendReq) {
	r.killTimer.Stop()
	defer func() {
		if r.clientCount() == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
	}()

	dbMsg, err := r.cs.db.CreateMessage(req.params)
	if err != nil {
		r.log.Println("error saving message:", err)
		req.reply <- sendResult{err: ErrPersistenceUnavailable}
		return
	}

	msg := &types.Message{
		Id:        dbMsg.Id,
		Sender:    req.sender,
		Receiver:  req.receiver,
		SessionId: req.params.SessionId,
		Content:   dbMsg.Content,
		Read:      dbMsg.Read,
		Timestamp: dbMsg.CreatedAt,
	}

	sm := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
		Message:     msg,
	}
	r.cs.deliver(sm, r.id, req.sender.Id, req.receiver.Id)
	r.cs.stats.Incr("NumMessagesDelivered")

	req.reply <- sendResult{msg: msg}
}

func (r *Room) clientCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	return len(r.clients)
}

func (r *Room) handleExit() {
	r.log.Printf("room %q is exiting", r.id)
	r.killTimer.Stop()

	// fail any queued sends rather than leaving callers waiting
	for {
		select {
		case req := <-r.sendChan:
			req.reply <- sendResult{err: ErrServiceUnavailable}
			continue
		default:
		}
		break
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
		delete(r.clients, c)
	}
	r.clientLock.Unlock()

	r.cs.stats.Decr("NumActiveRooms")
	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}
