package webui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// StreamMessage is one message of the status stream.
type StreamMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Status    *Status   `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// hub fans status updates out to the open streams.
type hub struct {
	mu      sync.Mutex
	clients map[chan Status]struct{}
	closed  chan struct{}
	once    sync.Once
}

func newHub() *hub {
	return &hub{clients: make(map[chan Status]struct{}), closed: make(chan struct{})}
}

func (h *hub) subscribe() chan Status {
	ch := make(chan Status, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan Status) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// broadcast replaces any undelivered status of a slow client with st.
func (h *hub) broadcast(st Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.once.Do(func() { close(h.closed) })
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Failed to upgrade status stream",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	logging.Debug("Status stream opened", zap.String("remote_addr", r.RemoteAddr))

	updates := s.hub.subscribe()
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.hub.unsubscribe(updates)
		_ = conn.Close()
		logging.Debug("Status stream closed", zap.String("remote_addr", r.RemoteAddr))
	}()

	go readPump(conn, cancel)

	st := s.opts.Status()
	if err := writeMessage(conn, StreamMessage{Type: "status", Timestamp: time.Now(), Status: &st}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.hub.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case st := <-updates:
			if err := writeMessage(conn, StreamMessage{Type: "status", Timestamp: time.Now(), Status: &st}); err != nil {
				logging.Debug("Failed to write status update", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readPump discards client messages and cancels the stream when the peer
// goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
