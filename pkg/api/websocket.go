package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// TaskUpdate is one real-time task state change pushed to subscribers
type TaskUpdate struct {
	Type      string      `json:"type"` // "task_update"
	TaskID    string      `json:"task_id"`
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Task      models.Task `json:"task"`
}

// WebSocketManager pushes task updates to websocket subscribers. It
// implements engine.Notifier.
type WebSocketManager struct {
	upgrader    websocket.Upgrader
	mu          sync.RWMutex
	subscribers map[string]map[*websocket.Conn]bool
	logger      logging.Logger
}

// NewWebSocketManager creates a websocket manager
func NewWebSocketManager(logger logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			// Browser clients connect from arbitrary local origins
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subscribers: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// TaskUpdated implements engine.Notifier
func (m *WebSocketManager) TaskUpdated(task models.Task) {
	update := TaskUpdate{
		Type:      "task_update",
		TaskID:    task.ID,
		Status:    string(task.Status),
		Timestamp: time.Now().UTC(),
		Task:      task,
	}

	m.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(m.subscribers[task.ID]))
	for conn := range m.subscribers[task.ID] {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(update); err != nil {
			m.remove(task.ID, conn)
		}
	}
}

// Subscribe upgrades the connection and streams updates for one task until
// the client disconnects
func (m *WebSocketManager) Subscribe(w http.ResponseWriter, r *http.Request, taskID string) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", logging.F("error", err.Error()))
		return
	}
	defer conn.Close()

	m.mu.Lock()
	if m.subscribers[taskID] == nil {
		m.subscribers[taskID] = make(map[*websocket.Conn]bool)
	}
	m.subscribers[taskID][conn] = true
	m.mu.Unlock()

	defer m.remove(taskID, conn)

	// Drain client messages; the read loop also detects disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *WebSocketManager) remove(taskID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.subscribers[taskID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.subscribers, taskID)
		}
	}
}

// handleTaskUpdates streams task state changes over a websocket
func (s *Server) handleTaskUpdates(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]

	// The task must exist before subscribing
	if _, err := s.engine.Get(taskID); err != nil {
		writeError(w, err)
		return
	}

	s.wsManager.Subscribe(w, r, taskID)
}
