package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/albumforge/api/internal/model"
)

// Client represents a WebSocket client subscribed to one album
type Client struct {
	AlbumID string
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub maintains active WebSocket connections grouped by album. Job progress
// is pushed here alongside the polling API; clients may use either.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	AlbumID string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.AlbumID] == nil {
				h.clients[client.AlbumID] = make(map[*Client]bool)
			}
			h.clients[client.AlbumID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for album %s", client.AlbumID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.AlbumID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.AlbumID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from album %s", client.AlbumID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.AlbumID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastProgress sends a job progress update to album subscribers
func (h *Hub) BroadcastProgress(albumID, jobID, trackID string, progress int, status model.JobStatus, message string) {
	msg := model.WSProgressMessage{
		Type:          model.WSMessageTypeProgress,
		JobID:         jobID,
		TrackID:       trackID,
		Progress:      progress,
		Status:        status,
		StatusMessage: message,
	}
	h.send(albumID, msg)
}

// BroadcastComplete announces a finished job and its new audio asset
func (h *Hub) BroadcastComplete(albumID, jobID, trackID string, asset *model.AudioAsset) {
	msg := model.WSCompleteMessage{
		Type:    model.WSMessageTypeComplete,
		JobID:   jobID,
		TrackID: trackID,
		Asset:   asset,
	}
	h.send(albumID, msg)
}

// BroadcastError sends a job failure to album subscribers
func (h *Hub) BroadcastError(albumID, jobID, trackID, code, message string) {
	msg := model.WSErrorMessage{
		Type:    model.WSMessageTypeError,
		JobID:   jobID,
		TrackID: trackID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	}
	h.send(albumID, msg)
}

func (h *Hub) send(albumID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{
		AlbumID: albumID,
		Message: data,
	}
}

// HandleConnection handles a WebSocket connection for one album
func (h *Hub) HandleConnection(c *websocket.Conn, albumID string) {
	client := &Client{
		AlbumID: albumID,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
