package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"kitmsg/internal/bus"
	"kitmsg/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	helloEventType = "hello"
	errorEventType = "error"
)

// OutboundSource is the part of the bus a channel needs to receive
// published events.
type OutboundSource interface {
	OnOutbound(sinkName string, sink func(domain.OutboundEvent))
	RemoveOutbound(sinkName string)
	DeclaredTypes() []domain.MessageType
}

// WSConfig configures the WebSocket bridge.
type WSConfig struct {
	Host           string
	Port           int
	Path           string   // WebSocket endpoint path (default: /ws)
	AllowedOrigins []string // empty allows any origin
	Queue          domain.Enqueuer
	Outbound       OutboundSource
	Metrics        http.Handler  // served on /metrics when set
	History        HistorySource // served on /history when set
	Logger         *slog.Logger
}

// HistorySource returns recorded bus traffic of one type ("*" for all)
// at or after since.
type HistorySource interface {
	Replay(name domain.MessageType, since time.Time) []bus.Record
}

// WebSocketBridge carries JSON frames between web clients and the bus.
type WebSocketBridge struct {
	host     string
	port     int
	path     string
	queue    domain.Enqueuer
	outbound OutboundSource
	metrics  http.Handler
	history  HistorySource
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// wsClient tracks a connected WebSocket client.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

// Frame is the JSON envelope in both directions.
type Frame struct {
	EventType domain.MessageType `json:"event_type"`
	Payload   domain.Payload     `json:"payload,omitempty"`
}

// NewWebSocketBridge creates a new WebSocket bridge.
func NewWebSocketBridge(cfg WSConfig) *WebSocketBridge {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8765
	}
	ws := &WebSocketBridge{
		host:     cfg.Host,
		port:     cfg.Port,
		path:     cfg.Path,
		queue:    cfg.Queue,
		outbound: cfg.Outbound,
		metrics:  cfg.Metrics,
		history:  cfg.History,
		logger:   cfg.Logger,
		clients:  make(map[string]*wsClient),
	}
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return ws
}

func (ws *WebSocketBridge) Name() string { return "websocket" }

// Handler returns the HTTP handler serving the websocket endpoint, /healthz
// and, when configured, /metrics.
func (ws *WebSocketBridge) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": ws.ClientCount()})
	})
	if ws.metrics != nil {
		mux.Handle("/metrics", ws.metrics)
	}
	if ws.history != nil {
		mux.HandleFunc("/history", ws.handleHistory)
	}
	return mux
}

// handleHistory serves GET /history?type=<name>&since=<RFC3339 or duration>.
// type defaults to every type; a duration such as 5m means "that long ago".
func (ws *WebSocketBridge) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := domain.MessageType(r.URL.Query().Get("type"))
	if name == "" {
		name = "*"
	}
	since, err := parseSince(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records := ws.history.Replay(name, since)
	if records == nil {
		records = []bus.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC3339 or a duration", raw)
	}
	return t, nil
}

// Attach registers the bridge as an outbound sink.
func (ws *WebSocketBridge) Attach() {
	ws.outbound.OnOutbound(ws.Name(), ws.deliver)
}

// Start serves until ctx is cancelled.
func (ws *WebSocketBridge) Start(ctx context.Context) error {
	ws.Attach()
	defer ws.outbound.RemoveOutbound(ws.Name())

	ws.server = &http.Server{
		Addr:              net.JoinHostPort(ws.host, strconv.Itoa(ws.port)),
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.logger.Info("websocket bridge starting", "addr", ws.server.Addr, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("websocket bridge: %w", err)
	}
}

func (ws *WebSocketBridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &wsClient{id: uuid.NewString(), conn: conn}
	ws.mu.Lock()
	ws.clients[client.id] = client
	ws.mu.Unlock()

	ws.logger.Info("websocket client connected", "client_id", client.id, "remote", r.RemoteAddr)

	client.send(Frame{EventType: helloEventType, Payload: domain.Payload{
		"client_id": client.id,
		"outbound":  ws.outbound.DeclaredTypes(),
	}})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client.id)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", client.id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "client_id", client.id, "err", err)
			}
			return
		}

		var frame Frame
		if err := domain.DecodeJSON(data, &frame); err != nil || frame.EventType == "" {
			ws.logger.Warn("invalid websocket frame", "client_id", client.id, "err", err)
			client.send(Frame{EventType: errorEventType, Payload: domain.Payload{"error": "invalid frame"}})
			continue
		}

		if err := ws.queue.Enqueue(domain.InboundEvent{
			Type:       frame.EventType,
			Payload:    domain.NormalizePayload(frame.Payload),
			ClientID:   client.id,
			ReceivedAt: time.Now(),
		}); err != nil {
			ws.logger.Warn("inbound event not queued", "client_id", client.id, "type", frame.EventType, "err", err)
		}
	}
}

// deliver broadcasts ev to every connected client.
func (ws *WebSocketBridge) deliver(ev domain.OutboundEvent) {
	frame := Frame{EventType: ev.Type, Payload: ev.Payload}

	ws.mu.RLock()
	targets := make([]*wsClient, 0, len(ws.clients))
	for _, c := range ws.clients {
		targets = append(targets, c)
	}
	ws.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			ws.logger.Debug("websocket write failed", "client_id", c.id, "err", err)
		}
	}
}

// ClientCount returns the number of connected clients.
func (ws *WebSocketBridge) ClientCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.clients)
}

func (c *wsClient) send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketBridge) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, id)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

var _ domain.Channel = (*WebSocketBridge)(nil)
