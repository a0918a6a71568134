package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"veritasai-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "veritas_progress"

// Envelope is the frame written to every websocket client.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Hub struct {
	// UserID -> connections (one per open tab or device)
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// closed when Run returns
	done     chan struct{}
	stopOnce sync.Once

	// rdb fans events out to hubs running in other instances. Optional.
	rdb      *redis.Client
	instance string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		instance:   uuid.NewString(),
		logger:     log,
	}
}

// Run serves register and unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Debug("HUB", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds client to the hub. It returns without effect once the hub
// has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Debug("HUB", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

// DocumentScoped is implemented by event payloads about a single document,
// so connections watching other documents can skip them.
type DocumentScoped interface {
	ScopeDocumentID() uuid.UUID
}

// Send delivers an event to every interested connection of userID, locally
// and, when redis is configured, on the other instances.
func (h *Hub) Send(userID uuid.UUID, eventType string, data interface{}) {
	documentID := uuid.Nil
	if scoped, ok := data.(DocumentScoped); ok {
		documentID = scoped.ScopeDocumentID()
	}

	frame, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("HUB", "Failed to encode event", map[string]interface{}{"type": eventType, "error": err.Error()})
		return
	}

	h.deliver(userID, documentID, frame)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{
			Origin:       h.instance,
			TargetUserID: userID,
			DocumentID:   documentID,
			Message:      frame,
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("HUB", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// ConnectedClients returns the number of local connections for userID.
func (h *Hub) ConnectedClients(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// deliver holds the read lock through every send: remove closes Send under
// the write lock, so a client can not be closed mid-send.
func (h *Hub) deliver(userID, documentID uuid.UUID, frame []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[userID] {
		if !client.Wants(documentID) {
			continue
		}
		select {
		case client.Send <- frame:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("HUB", "Client send buffer full, dropping connection", map[string]interface{}{"user_id": userID})
		go h.Unregister(client)
	}
}

type clusterMessage struct {
	Origin       string          `json:"origin"`
	TargetUserID uuid.UUID       `json:"target_user_id"`
	DocumentID   uuid.UUID       `json:"document_id"`
	Message      json.RawMessage `json:"message"`
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("HUB", "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.instance {
			continue
		}
		h.deliver(payload.TargetUserID, payload.DocumentID, payload.Message)
	}
}
