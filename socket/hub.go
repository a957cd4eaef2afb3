package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"typesync/internal/document/model"
	"typesync/internal/document/service"
	"typesync/pkg/logger"
	"typesync/store"
)

const (
	UpdateType         = "UPDATE"          // Document record changed
	PresenceUpdateType = "PRESENCE_UPDATE" // A user joined or left
)

type WSMessage struct {
	Type      string          `json:"type"`
	DocID     string          `json:"document_id"`
	UserEmail string          `json:"user_email"`
	Payload   json.RawMessage `json:"payload"`
}

// UpdatePayload is the inbound edit message. Client and Seq are the
// writer tag the sender stamps on its debounced writes so it can discard
// its own echo when the document fans back out.
type UpdatePayload struct {
	Content string `json:"content"`
	Client  string `json:"client"`
	Seq     uint64 `json:"seq"`
}

type UserStatus struct {
	Email    string    `json:"email"`
	LastSeen time.Time `json:"last_seen"`
}

// Hub bridges store subscriptions to websocket rooms. The first client
// joining a document opens one store subscription for the room; document
// values fan out to every member on each change, and inbound updates are
// merged into the store rather than relayed directly, so the store stays
// the single arbiter of content.
type Hub struct {
	st   store.Store
	docs *service.DocumentService

	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan WSMessage

	mu       sync.Mutex
	rooms    map[string]map[*Client]bool
	watches  map[string]store.Unsubscribe
	presence map[string]map[string]UserStatus // docID -> email -> status
}

func NewHub(st store.Store, docs *service.DocumentService) *Hub {
	return &Hub{
		st:         st,
		docs:       docs,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan WSMessage),
		rooms:      make(map[string]map[*Client]bool),
		watches:    make(map[string]store.Unsubscribe),
		presence:   make(map[string]map[string]UserStatus),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.Broadcast:
			h.applyUpdate(msg)
		}
	}
}

func (h *Hub) register(client *Client) {
	ctx := context.Background()

	// Opening a document grants the opener membership, so the join is
	// done before the room sees its first snapshot.
	if err := h.docs.OpenDocument(ctx, client.DocID, client.Email); err != nil {
		logger.Sugar.Errorf("Failed to open document %s for %s: %v", client.DocID, client.Email, err)
	}

	h.mu.Lock()
	first := h.rooms[client.DocID] == nil
	if first {
		h.rooms[client.DocID] = make(map[*Client]bool)
		h.presence[client.DocID] = make(map[string]UserStatus)
	}
	h.rooms[client.DocID][client] = true
	h.presence[client.DocID][client.Email] = UserStatus{Email: client.Email, LastSeen: time.Now()}
	h.mu.Unlock()

	if first {
		// The subscription's immediate initial delivery doubles as the
		// new room's first snapshot.
		docID := client.DocID
		unsub, err := h.st.Subscribe(model.DocumentPath(docID), func(raw json.RawMessage) {
			h.fanOutDocument(docID, raw)
		})
		if err != nil {
			logger.Sugar.Errorf("Failed to watch document %s: %v", docID, err)
		} else {
			h.mu.Lock()
			h.watches[docID] = unsub
			h.mu.Unlock()
		}
	} else {
		raw, err := h.st.Read(ctx, model.DocumentPath(client.DocID))
		if err != nil {
			logger.Sugar.Errorf("Failed to load document %s for %s: %v", client.DocID, client.Email, err)
		} else {
			h.send(client, WSMessage{Type: UpdateType, DocID: client.DocID, Payload: raw})
		}
	}

	h.broadcastPresenceUpdate(client.DocID)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	docID := client.DocID
	var unwatch store.Unsubscribe
	if _, ok := h.rooms[docID][client]; ok {
		delete(h.rooms[docID], client)
		delete(h.presence[docID], client.Email)
		close(client.Send)

		if len(h.rooms[docID]) == 0 {
			unwatch = h.watches[docID]
			delete(h.rooms, docID)
			delete(h.watches, docID)
			delete(h.presence, docID)
			logger.Sugar.Infof("Closed and cleaned up empty room: %s", docID)
		}
	}
	h.mu.Unlock()

	if unwatch != nil {
		unwatch()
		return
	}
	if h.roomExists(docID) {
		h.broadcastPresenceUpdate(docID)
	}
}

// applyUpdate merges an inbound edit into the store. The room learns the
// new content through the store subscription, sender included; the
// sender's writer tag lets it discard that echo.
func (h *Hub) applyUpdate(msg WSMessage) {
	var payload UpdatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		logger.Sugar.Errorf("Bad update payload from %s: %v", msg.UserEmail, err)
		return
	}
	if payload.Client == "" {
		payload.Client = msg.UserEmail
	}

	err := h.st.Merge(context.Background(), model.DocumentPath(msg.DocID), map[string]any{
		"content":      payload.Content,
		"lastModified": model.Timestamp(),
		"lastWriter":   model.WriterTag{Client: payload.Client, Seq: payload.Seq},
	})
	if err != nil {
		logger.Sugar.Errorf("Failed to apply update to %s from %s: %v", msg.DocID, msg.UserEmail, err)
	}
}

func (h *Hub) fanOutDocument(docID string, raw json.RawMessage) {
	if raw == nil {
		// Document deleted: drop the room. Closing the connections makes
		// each readPump exit and unregister safely.
		h.mu.Lock()
		clients := make([]*Client, 0, len(h.rooms[docID]))
		for client := range h.rooms[docID] {
			clients = append(clients, client)
		}
		h.mu.Unlock()
		for _, client := range clients {
			client.Conn.Close()
		}
		return
	}

	payload, err := json.Marshal(WSMessage{Type: UpdateType, DocID: docID, Payload: raw})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling document broadcast: %v", err)
		return
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.rooms[docID]))
	for client := range h.rooms[docID] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.Send <- payload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer is full, dropping document update.", client.Email)
		}
	}
}

func (h *Hub) roomExists(docID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[docID] != nil
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.presence[docID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.presence[docID]))
		for _, status := range h.presence[docID] {
			userStatuses = append(userStatuses, status)
		}
		clientsToSend = make([]*Client, 0, len(h.rooms[docID]))
		for client := range h.rooms[docID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.Email)
		}
	}
}

func (h *Hub) send(client *Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling message for %s: %v", client.Email, err)
		return
	}
	select {
	case client.Send <- payload:
	default:
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping message.", client.Email)
	}
}
