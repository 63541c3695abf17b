package ipc

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber receives host snapshots via the spectator feed and reconnects
// when the host restarts. Callbacks must be set before Start and run on the
// subscriber goroutine.
type Subscriber struct {
	socketPath string
	conn       net.Conn
	connMu     sync.Mutex

	// Latest snapshot (lock-free access)
	latestSnapshot atomic.Pointer[SnapshotMessage]
	hello          atomic.Pointer[HelloMessage]
	helloCh        chan HelloMessage

	// Stats
	snapshotsReceived atomic.Int64
	reconnects        atomic.Int64
	errors            atomic.Int64

	// Control
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Callbacks
	onSnapshot   func(*SnapshotMessage)
	onHello      func(*HelloMessage)
	onConnect    func()
	onDisconnect func()
}

// NewSubscriber creates a new IPC subscriber
func NewSubscriber(socketPath string) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	return &Subscriber{
		socketPath: socketPath,
		helloCh:    make(chan HelloMessage, 1),
		stopCh:     make(chan struct{}),
	}
}

// OnSnapshot sets a callback for when a snapshot is received
func (s *Subscriber) OnSnapshot(fn func(*SnapshotMessage)) { s.onSnapshot = fn }

// OnHello sets a callback for when the match description is received
func (s *Subscriber) OnHello(fn func(*HelloMessage)) { s.onHello = fn }

// OnConnect sets a callback for when connection is established
func (s *Subscriber) OnConnect(fn func()) { s.onConnect = fn }

// OnDisconnect sets a callback for when connection is lost
func (s *Subscriber) OnDisconnect(fn func()) { s.onDisconnect = fn }

// Start starts the subscriber, connecting to the host
func (s *Subscriber) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil // Already running
	}

	s.wg.Add(1)
	go s.connectionLoop()

	log.Printf("📡 Spectator connecting to %s", GetPlatformAddress(s.socketPath))
	return nil
}

// Stop stops the subscriber
func (s *Subscriber) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return // Not running
	}

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	log.Println("📡 Spectator stopped")
}

// GetLatestSnapshot returns the most recent snapshot (lock-free)
func (s *Subscriber) GetLatestSnapshot() *SnapshotMessage {
	return s.latestSnapshot.Load()
}

// GetHello returns the match description, nil before the first connection
func (s *Subscriber) GetHello() *HelloMessage {
	return s.hello.Load()
}

// WaitForHello blocks until the match description arrives or timeout
func (s *Subscriber) WaitForHello(timeout time.Duration) *HelloMessage {
	if h := s.hello.Load(); h != nil {
		return h
	}
	select {
	case h := <-s.helloCh:
		return &h
	case <-time.After(timeout):
		return nil
	case <-s.stopCh:
		return nil
	}
}

// GetStats returns subscriber statistics
func (s *Subscriber) GetStats() (received int64, reconnects int64, errors int64) {
	return s.snapshotsReceived.Load(), s.reconnects.Load(), s.errors.Load()
}

// IsConnected returns whether the subscriber is connected
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// connectionLoop maintains the connection to the host
func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := ConnectPlatform(s.socketPath)
		if err == nil {
			s.connMu.Lock()
			if !s.running.Load() {
				s.connMu.Unlock()
				conn.Close()
				return
			}
			s.conn = conn
			s.connMu.Unlock()

			if s.onConnect != nil {
				s.onConnect()
			}

			s.readLoop(conn)

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()

			if s.onDisconnect != nil {
				s.onDisconnect()
			}
			s.reconnects.Add(1)
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

// readLoop reads messages until the connection fails or Stop closes it
func (s *Subscriber) readLoop(conn net.Conn) {
	for s.running.Load() {
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if !s.running.Load() {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Println("🔌 Host closed the spectator feed")
				return
			}
			log.Printf("⚠️ IPC read error: %v", err)
			s.errors.Add(1)
			return
		}

		switch msgType {
		case MsgTypeSnapshot:
			s.handleSnapshot(data)
		case MsgTypeHello:
			s.handleHello(data)
		}
	}
}

func (s *Subscriber) handleSnapshot(data []byte) {
	snapshot, err := DecodeSnapshot(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode snapshot: %v", err)
		s.errors.Add(1)
		return
	}

	s.latestSnapshot.Store(snapshot)
	s.snapshotsReceived.Add(1)

	if s.onSnapshot != nil {
		s.onSnapshot(snapshot)
	}
}

func (s *Subscriber) handleHello(data []byte) {
	hello, err := DecodeHello(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode hello: %v", err)
		s.errors.Add(1)
		return
	}

	s.hello.Store(hello)
	log.Printf("🥊 Watching match %s: %s vs %s @ %d TPS", hello.MatchID, hello.Players[0], hello.Players[1], hello.TickRate)

	select {
	case s.helloCh <- *hello:
	default:
	}

	if s.onHello != nil {
		s.onHello(hello)
	}
}
