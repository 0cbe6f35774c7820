package observability

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// wsEvent is the JSON envelope written to every connected client.
type wsEvent struct {
	Event  string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
	At     time.Time      `json:"at"`
}

// WebSocketSink fans events out to every connected observer over a
// websocket, mirroring the teacher's WebSocketStreamConnection
// (agent/streaming/ws_adapter.go): writes are serialized per-connection
// because a websocket connection does not support concurrent writers. Each
// client gets its own 2s write deadline, so a slow or dead client can delay
// the others by at most that long and never causes them to be dropped.
type WebSocketSink struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// NewWebSocketSink creates an empty WebSocketSink with no subscribers yet.
func NewWebSocketSink(logger *zap.Logger) *WebSocketSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketSink{
		logger:  logger.With(zap.String("component", "observability_ws")),
		clients: make(map[*wsClient]struct{}),
	}
}

// Register adds conn to the broadcast set and returns an unregister func
// the caller must invoke once the connection's read loop exits.
func (s *WebSocketSink) Register(conn *websocket.Conn) (unregister func()) {
	c := &wsClient{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}
}

// Emit implements Sink: it best-effort broadcasts to every registered
// client. A client whose write fails (slow consumer, closed connection) is
// dropped from the set rather than retried — mirrors the bus's own
// best-effort broadcast semantics (spec.md §9).
func (s *WebSocketSink) Emit(event string, fields map[string]any) {
	s.mu.Lock()
	if len(s.clients) == 0 {
		s.mu.Unlock()
		return
	}
	targets := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	data, err := json.Marshal(wsEvent{Event: event, Fields: fields, At: time.Now()})
	if err != nil {
		s.logger.Warn("failed to marshal event", zap.Error(err))
		return
	}

	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.write(ctx, data)
		cancel()
		if err != nil {
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
		}
	}
}
