package ipc

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"rollback-duel/internal/host"
)

// Publisher publishes host snapshots to connected spectators via Unix socket
type Publisher struct {
	socketPath string
	listener   net.Listener
	hello      HelloMessage

	// Connected clients
	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	// Snapshot channel (ring buffer behavior - drop old if full)
	snapshotCh chan *host.Published

	// Stats
	clientCount   atomic.Int32
	snapshotsSent atomic.Int64
	droppedFrames atomic.Int64

	// Control
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPublisher creates a new IPC publisher. hello is sent to every spectator
// on connect.
func NewPublisher(socketPath string, hello HelloMessage) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Publisher{
		socketPath: socketPath,
		hello:      hello,
		clients:    make(map[net.Conn]struct{}),
		snapshotCh: make(chan *host.Published, 8),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the publisher server
func (p *Publisher) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return nil // Already running
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		p.running.Store(false)
		return err
	}
	p.listener = listener

	p.wg.Add(2)
	go p.acceptLoop()
	go p.broadcastLoop()

	log.Printf("📡 Spectator feed started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop stops the publisher and closes every spectator connection
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return // Not running
	}

	close(p.stopCh)
	if p.listener != nil {
		p.listener.Close()
	}

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	p.clientCount.Store(0)
	p.clientsMu.Unlock()

	p.wg.Wait()

	CleanupSocket(p.socketPath)
	log.Println("📡 Spectator feed stopped")
}

// PublishSnapshot queues a snapshot for broadcast. It is a host.OnSnapshot
// callback: non-blocking, dropping the oldest queued snapshot when full.
func (p *Publisher) PublishSnapshot(snapshot *host.Published) {
	if !p.running.Load() || p.clientCount.Load() == 0 {
		return
	}

	select {
	case p.snapshotCh <- snapshot:
	default:
		select {
		case <-p.snapshotCh:
			p.droppedFrames.Add(1)
		default:
		}
		select {
		case p.snapshotCh <- snapshot:
		default:
		}
	}
}

// GetStats returns publisher statistics
func (p *Publisher) GetStats() (clients int, sent int64, dropped int64) {
	return int(p.clientCount.Load()), p.snapshotsSent.Load(), p.droppedFrames.Load()
}

// acceptLoop accepts new client connections
func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	for p.running.Load() {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.running.Load() {
				return // Expected during shutdown
			}
			log.Printf("⚠️ IPC accept error: %v", err)
			continue
		}

		p.addClient(conn)
	}
}

// addClient greets a new spectator and adds it to the broadcast set
func (p *Publisher) addClient(conn net.Conn) {
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := WriteMessage(conn, MsgTypeHello, p.hello); err != nil {
		log.Printf("⚠️ Failed to greet spectator: %v", err)
		conn.Close()
		return
	}

	p.clientsMu.Lock()
	if !p.running.Load() {
		p.clientsMu.Unlock()
		conn.Close()
		return
	}
	p.clients[conn] = struct{}{}
	count := p.clientCount.Add(1)
	p.clientsMu.Unlock()

	log.Printf("👀 Spectator connected (total: %d)", count)
}

// removeClient removes a client connection
func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[conn]; !ok {
		return
	}
	delete(p.clients, conn)
	conn.Close()
	count := p.clientCount.Add(-1)
	log.Printf("🔌 Spectator disconnected (remaining: %d)", count)
}

// broadcastLoop broadcasts snapshots to all clients
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case snapshot := <-p.snapshotCh:
			p.broadcast(snapshot)
		}
	}
}

// broadcast sends a snapshot to all connected clients
func (p *Publisher) broadcast(snapshot *host.Published) {
	msg := FromPublished(snapshot, p.hello.Players)

	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	var failed []net.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteMessage(conn, MsgTypeSnapshot, msg); err != nil {
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		p.removeClient(conn)
	}

	if len(clients) > 0 && len(failed) < len(clients) {
		p.snapshotsSent.Add(1)
	}
}
