package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rollback-duel/internal/host"
)

const (
	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 4

	wsWriteWait      = 2 * time.Second
	wsMaxMessageSize = 4 << 10
	wsBroadcastQueue = 256
)

// HubOptions configures a WebSocketHub.
type HubOptions struct {
	AllowedOrigins []string
	MaxClients     int
	MaxPerIP       int
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub fans published snapshots and relayed actions out to every
// connected client and feeds client actions to the host. Only the Run
// goroutine writes to connections.
type WebSocketHub struct {
	host     HostInterface
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
	count      atomic.Int32

	wsLimiter *WebSocketRateLimiter
}

// NewWebSocketHub creates a hub. Nothing runs until Run is called.
func NewWebSocketHub(h HostInterface, opts HubOptions) *WebSocketHub {
	if opts.MaxPerIP <= 0 {
		opts.MaxPerIP = MaxWSConnectionsPerIP
	}
	origins := NewOriginChecker(opts.AllowedOrigins)

	return &WebSocketHub{
		host: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origins.Allowed(origin) {
					return true
				}
				log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
				RecordConnectionRejected("origin")
				return false
			},
		},
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, wsBroadcastQueue),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(opts.MaxPerIP, opts.MaxClients),
	}
}

// Run serves the hub until ctx is done, then closes every connection.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn, client := range h.clients {
				h.drop(conn, client)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			h.mu.Unlock()
			n := h.count.Add(1)
			log.Printf("📱 Client connected from %s (%d total)", client.ip, n)
			UpdateWSConnections(int(n))

			// Late joiners get the current state at once.
			if msg, err := EncodeEnvelope(MessageSnapshot, h.host.Snapshot()); err == nil {
				h.write(client.conn, msg)
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				h.drop(conn, client)
				log.Printf("📱 Client disconnected (%d remaining)", h.count.Load())
			}
			h.mu.Unlock()
			UpdateWSConnections(int(h.count.Load()))

		case message := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()
			for _, conn := range conns {
				h.write(conn, message)
			}
		}
	}
}

// write sends one message; a failed client is dropped.
func (h *WebSocketHub) write(conn *websocket.Conn, message []byte) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		h.mu.Lock()
		if client, ok := h.clients[conn]; ok {
			h.drop(conn, client)
		}
		h.mu.Unlock()
		return
	}
	wsMessagesTotal.WithLabelValues("out").Inc()
}

// drop closes and forgets a client. Called with h.mu held.
func (h *WebSocketHub) drop(conn *websocket.Conn, client *wsClient) {
	h.wsLimiter.Release(client.ip)
	delete(h.clients, conn)
	conn.Close()
	h.count.Add(-1)
}

// Broadcast queues an envelope for every client. Messages are dropped when
// the queue is full.
func (h *WebSocketHub) Broadcast(msgType string, data any) {
	if h.count.Load() == 0 {
		return
	}
	msg, err := EncodeEnvelope(msgType, data)
	if err != nil {
		log.Printf("⚠️ Broadcast %s: %v", msgType, err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		wsMessagesTotal.WithLabelValues("dropped").Inc()
	}
}

// BroadcastSnapshot is a host.OnSnapshot callback.
func (h *WebSocketHub) BroadcastSnapshot(p *host.Published) {
	h.Broadcast(MessageSnapshot, p)
}

// BroadcastAction is a host.OnAction callback.
func (h *WebSocketHub) BroadcastAction(r host.Relayed) {
	h.Broadcast(MessageAction, r)
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	return int(h.count.Load())
}

// HandleWebSocket upgrades the request and reads client actions until the
// connection closes.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: connection limit reached", ip)
		RecordConnectionRejected("ws_limit")
		writeError(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.done:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		wsMessagesTotal.WithLabelValues("in").Inc()
		h.handleMessage(ip, message)
	}
}

func (h *WebSocketHub) handleMessage(ip string, message []byte) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		wsMessagesTotal.WithLabelValues("invalid").Inc()
		return
	}

	switch env.Type {
	case MessageAction:
		var msg ActionMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.Action.PlayerID == "" {
			wsMessagesTotal.WithLabelValues("invalid").Inc()
			return
		}
		tick := host.LiveTick
		if msg.Tick != nil && *msg.Tick >= 0 {
			tick = *msg.Tick
		}
		if err := h.host.SubmitAt(msg.Action, tick); err != nil {
			log.Printf("⚠️ Action from %s (%s) rejected: %v", msg.Action.PlayerID, ip, err)
		}
	default:
		wsMessagesTotal.WithLabelValues("invalid").Inc()
	}
}
