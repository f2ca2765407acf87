package server

import (
	"context"
	"log"
	"strconv"
	"sync"

	"github.com/tutorlink/chat-service/internal/database"
	"github.com/tutorlink/chat-service/internal/stats"
)

type roomReq struct {
	a, b  int
	reply chan *Room
}

type ChatServer struct {
	log   *log.Logger
	db    database.ChatRepository
	stats stats.StatsProvider

	// clients holds every live connection; userMap is the presence
	// table, one entry per identity with at least one connection.
	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}
	clientsLock sync.RWMutex

	rooms     map[string]*Room
	roomsLock sync.RWMutex

	joinChan       chan *ClientMessage
	roomChan       chan *roomReq
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan string
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		joinChan:       make(chan *ClientMessage),
		roomChan:       make(chan *roomReq),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	sp.RegisterMetric("NumActiveClients")
	sp.RegisterMetric("NumOnlineUsers")
	sp.RegisterMetric("NumActiveRooms")
	sp.RegisterMetric("NumMessagesDelivered")
	sp.RegisterMetric("NumReadReceipts")

	return cs, nil
}

// RoomId derives the conversation identifier for a pair of identities.
// Both participants compute the same id regardless of ordering.
func RoomId(a, b int) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(a) + ":" + strconv.Itoa(b)
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			room := cs.loadRoom(joinMsg.UserId, joinMsg.Join.UserId)
			select {
			case room.joinChan <- joinMsg:
			default:
				cs.log.Printf("join channel full on room %q", room.id)
				joinMsg.client.queueMessage(ErrorMessage(joinMsg.Id, ErrServiceUnavailable))
			}
		case req := <-cs.roomChan:
			req.reply <- cs.loadRoom(req.a, req.b)
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection %s for user %d", client.id, client.user.Id)
			if first := cs.addClient(client); first {
				cs.stats.Incr("NumOnlineUsers")
				cs.broadcastPresence(client.user.Id, true)
			}
			cs.stats.Incr("NumActiveClients")
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %s for user %d", client.id, client.user.Id)
			if last := cs.removeClient(client); last {
				cs.stats.Decr("NumOnlineUsers")
				cs.broadcastPresence(client.user.Id, false)
			}
			cs.stats.Decr("NumActiveClients")
		case id := <-cs.unloadRoomChan:
			if r, ok := cs.getRoom(id); ok {
				cs.unloadRoom(id)
				r.exit <- struct{}{}
				<-r.done
			}
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.roomsLock.Lock()
			for id, r := range cs.rooms {
				delete(cs.rooms, id)
				r.exit <- struct{}{}
				<-r.done
			}
			cs.roomsLock.Unlock()

			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	select {
	case cs.stop <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registerChan <- c
}

// addClient reports whether this is the identity's first live
// connection, i.e. the empty to non-empty presence transition.
func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	first := len(cs.userMap[c.user.Id]) == 0
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	return first
}

// removeClient reports whether the identity went offline with this
// connection, i.e. the non-empty to empty transition.
func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)

	userClients, ok := cs.userMap[c.user.Id]
	if !ok {
		return false
	}
	delete(userClients, c)
	if len(userClients) == 0 {
		delete(cs.userMap, c.user.Id)
		return true
	}
	return false
}

// broadcastPresence announces an identity's online/offline transition
// to every other live connection. Called once per identity transition,
// not once per connection.
func (cs *ChatServer) broadcastPresence(userId int, online bool) {
	note := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Presence: &Presence{UserId: userId, Online: online},
		},
	}

	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()
	for c := range cs.clients {
		if c.user.Id == userId {
			continue
		}
		c.queueMessage(note)
	}
}

// deliver queues msg at most once per live connection across the
// room's current members and the given identities' personal channels.
// A slow connection's full queue never blocks the others.
func (cs *ChatServer) deliver(msg *ServerMessage, roomId string, userIds ...int) {
	targets := make(map[*Client]struct{})

	if roomId != "" {
		if r, ok := cs.getRoom(roomId); ok {
			r.clientLock.RLock()
			for c := range r.clients {
				targets[c] = struct{}{}
			}
			r.clientLock.RUnlock()
		}
	}

	cs.clientsLock.RLock()
	for _, id := range userIds {
		for c := range cs.userMap[id] {
			targets[c] = struct{}{}
		}
	}
	cs.clientsLock.RUnlock()

	for c := range targets {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()
	r, ok := cs.rooms[id]
	return r, ok
}

func (cs *ChatServer) addRoom(id string, r *Room) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()
	cs.rooms[id] = r
}

func (cs *ChatServer) unloadRoom(id string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()
	if _, ok := cs.rooms[id]; ok {
		cs.log.Printf("removing room %q", id)
		delete(cs.rooms, id)
	}
}

// loadRoom returns the live room for the pair, starting one if needed.
// Only called from the run loop so room creation is serialized.
func (cs *ChatServer) loadRoom(a, b int) *Room {
	id := RoomId(a, b)
	if r, ok := cs.getRoom(id); ok {
		return r
	}

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}

	r := &Room{
		id:           id,
		participants: [2]int{lo, hi},
		cs:           cs,
		joinChan:     make(chan *ClientMessage, 256),
		leaveChan:    make(chan *ClientMessage, 256),
		sendChan:     make(chan *sendReq, 256),
		clients:      make(map[*Client]struct{}),
		userMap:      make(map[int]map[*Client]struct{}),
		log:          cs.log,
		exit:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	cs.addRoom(id, r)
	cs.stats.Incr("NumActiveRooms")
	go r.start()

	return r
}

// roomFor resolves the room from outside the run loop.
func (cs *ChatServer) roomFor(a, b int) *Room {
	req := &roomReq{a: a, b: b, reply: make(chan *Room, 1)}
	select {
	case cs.roomChan <- req:
	case <-cs.done:
		return nil
	}
	return <-req.reply
}
