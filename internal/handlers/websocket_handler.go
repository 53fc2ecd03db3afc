package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	websocket "github.com/gorilla/websocket"

	domain "github.com/llmeter/llmeter/internal/domain"
	logger "github.com/llmeter/llmeter/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	feedBufferSize = 16
	writeTimeout   = 5 * time.Second
)

// OutcomeFeed broadcasts every completed outcome to connected websocket
// clients. Slow clients drop messages rather than blocking the completion
// path.
type OutcomeFeed struct {
	mu      sync.RWMutex
	clients map[string]chan []byte
}

// NewOutcomeFeed creates an empty feed
func NewOutcomeFeed() *OutcomeFeed {
	return &OutcomeFeed{
		clients: make(map[string]chan []byte),
	}
}

// Publish fans one outcome out to every connected client
func (f *OutcomeFeed) Publish(outcome domain.CompletionOutcome) {
	data, err := json.Marshal(outcome)
	if err != nil {
		logger.Error("Failed to marshal outcome for feed", "error", err)
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for clientID, ch := range f.clients {
		select {
		case ch <- data:
		default:
			logger.Debug("Dropping feed message for slow client", "client_id", clientID)
		}
	}
}

// ClientCount reports connected clients (test helper)
func (f *OutcomeFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *OutcomeFeed) subscribe(clientID string) chan []byte {
	ch := make(chan []byte, feedBufferSize)

	f.mu.Lock()
	f.clients[clientID] = ch
	f.mu.Unlock()

	return ch
}

func (f *OutcomeFeed) unsubscribe(clientID string) {
	f.mu.Lock()
	delete(f.clients, clientID)
	f.mu.Unlock()
}

// HandleWebSocket upgrades the connection and streams outcomes until the
// client disconnects
func (f *OutcomeFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close WebSocket connection", "error", err)
		}
	}()

	clientID := uuid.New().String()
	ch := f.subscribe(clientID)
	defer f.unsubscribe(clientID)

	logger.Info("WebSocket client connected", "client_id", clientID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			logger.Info("WebSocket client disconnected", "client_id", clientID)
			return
		case data := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Warn("Failed to write to WebSocket client", "client_id", clientID, "error", err)
				return
			}
		}
	}
}
