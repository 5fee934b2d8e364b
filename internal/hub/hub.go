// Package hub fans named events out to sockets and spectator feeds. Room
// events are also relayed through Redis pub/sub so every server process
// delivers them to its own connections.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/quizblitz/live-server/internal/redis"
)

const (
	clientBufferSize  = 64
	publishBufferSize = 1024
)

// Envelope is one outbound frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	Handle string
	Events chan Envelope
	Done   chan struct{}

	room string
}

type relayMessage struct {
	Origin   string   `json:"origin"`
	Room     string   `json:"room"`
	Envelope Envelope `json:"envelope"`
}

type Hub struct {
	redis    *redis.Client
	origin   string
	clients  map[string]*Client          // handle -> client
	rooms    map[string]map[*Client]bool // code -> members
	mu       sync.RWMutex
	outbound chan relayMessage
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a hub. A nil redis client keeps delivery local to this process.
func New(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:    redisClient,
		origin:   uuid.NewString(),
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[*Client]bool),
		outbound: make(chan relayMessage, publishBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the Redis publisher and subscriber loops.
func (h *Hub) Start() {
	if h.redis == nil {
		return
	}
	h.wg.Add(2)
	go h.publishLoop()
	go h.subscribeLoop()
}

// Connect registers a new connection under a fresh handle.
func (h *Hub) Connect() *Client {
	client := &Client{
		Handle: uuid.NewString(),
		Events: make(chan Envelope, clientBufferSize),
		Done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.Handle] = client
	total := len(h.clients)
	h.mu.Unlock()

	log.Debug().Str("handle", client.Handle).Int("clientCount", total).Msg("client connected")
	return client
}

// Watch registers a receive-only spectator of room.
func (h *Hub) Watch(code string) *Client {
	client := h.Connect()
	h.JoinRoom(client, code)
	return client
}

// JoinRoom moves client into room, leaving any previous room.
func (h *Hub) JoinRoom(client *Client, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoomLocked(client)
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[*Client]bool)
	}
	h.rooms[code][client] = true
	client.room = code
}

func (h *Hub) leaveRoomLocked(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// LeaveRoom removes client from its room without disconnecting it.
func (h *Hub) LeaveRoom(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client)
}

// Room returns the room client is in, if any.
func (h *Hub) Room(client *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return client.room
}

func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.Handle]; !ok {
		return
	}
	h.leaveRoomLocked(client)
	delete(h.clients, client.Handle)
	close(client.Done)

	log.Debug().Str("handle", client.Handle).Int("clientCount", len(h.clients)).Msg("client disconnected")
}

func encode(event string, payload any) (Envelope, bool) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return env, false
	}
	env.Data = data
	return env, true
}

// ToRoom delivers to local members of code and queues the event for other
// processes. It never blocks.
func (h *Hub) ToRoom(code, event string, payload any) {
	env, ok := encode(event, payload)
	if !ok {
		return
	}
	h.broadcast(code, env)

	if h.redis == nil {
		return
	}
	select {
	case h.outbound <- relayMessage{Origin: h.origin, Room: code, Envelope: env}:
	default:
		log.Warn().Str("code", code).Str("event", event).Msg("relay queue full, dropping event")
	}
}

// ToConnection delivers to one local connection. Unknown handles are ignored.
func (h *Hub) ToConnection(handle, event string, payload any) {
	h.mu.RLock()
	client := h.clients[handle]
	h.mu.RUnlock()
	if client == nil {
		return
	}
	env, ok := encode(event, payload)
	if !ok {
		return
	}
	send(client, env)
}

func send(client *Client, env Envelope) {
	select {
	case client.Events <- env:
	default:
		log.Warn().
			Str("handle", client.Handle).
			Str("event", env.Event).
			Msg("client event buffer full, dropping event")
	}
}

func (h *Hub) broadcast(code string, env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[code] {
		send(client, env)
	}
}

func (h *Hub) publishLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal relay message")
				continue
			}
			if err := h.redis.Publish(h.ctx, redisclient.RoomChannel(msg.Room), data).Err(); err != nil {
				log.Error().Err(err).Str("code", msg.Room).Msg("failed to publish room event")
			}
		}
	}
}

func (h *Hub) subscribeLoop() {
	defer h.wg.Done()

	pubsub := h.redis.PSubscribe(h.ctx, redisclient.RoomPattern)
	defer pubsub.Close()

	log.Debug().Str("pattern", redisclient.RoomPattern).Msg("redis pubsub subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRelay(msg.Channel, []byte(msg.Payload))
		}
	}
}

// handleRelay delivers an event published by another process.
func (h *Hub) handleRelay(channel string, payload []byte) {
	code, ok := redisclient.CodeFromRoomChannel(channel)
	if !ok {
		return
	}
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal relay message")
		return
	}
	if msg.Origin == h.origin {
		return
	}
	h.broadcast(code, msg.Envelope)
}

func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Done)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]bool)
}

// ClientCount is the number of sockets and spectators in room code.
func (h *Hub) ClientCount(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// TotalClients counts every connection on this process.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
