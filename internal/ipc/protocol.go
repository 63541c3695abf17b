// Package ipc feeds match snapshots from the host to local spectator
// processes over a Unix domain socket (TCP localhost on Windows).
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultSocketPath is the Unix socket path for IPC
	DefaultSocketPath = "/tmp/rollback-duel.sock"

	// DefaultTCPPort is used instead of a socket on Windows
	DefaultTCPPort = "127.0.0.1:7070"

	// Message types
	MsgTypeSnapshot byte = 0x01
	MsgTypeHello    byte = 0x02

	// Protocol version for compatibility checking
	ProtocolVersion uint16 = 2

	// Connection settings
	MaxMessageSize = 64 * 1024
	WriteTimeout   = 50 * time.Millisecond
	ReconnectDelay = 500 * time.Millisecond
)

// HelloMessage describes the match; it is sent once to every new subscriber.
type HelloMessage struct {
	MatchID     string
	ArenaID     string
	Players     [2]string
	TickRate    int
	FixedStepMs float64
}

// SnapshotMessage is the wire form of one published host snapshot.
type SnapshotMessage struct {
	Sequence  uint64
	Timestamp int64 // Unix nano
	Tick      int64
	TMs       float64
	MatchID   string
	Phase     uint8
	Stocks    map[string]int
	Players   []PlayerData
	Event     *EventData // nil unless something happened on this tick
}

// PlayerData is the IPC representation of a fighter
type PlayerData struct {
	ID       string
	X, Y     float64
	VX, VY   float64
	Facing   int
	HP       int
	Grounded bool

	AttackActiveUntilMs float64
	NextAttackAtMs      float64
}

// EventData is the IPC representation of a match event
type EventData struct {
	Type       uint8
	Tick       int64
	Phase      uint8
	Loser      string
	Winner     string
	Losers     []string
	Double     bool
	Eliminated []string
}

// Header is the message header for framing
type Header struct {
	Version  uint16
	Type     byte
	Reserved byte
	Length   uint32
}

const HeaderSize = 8 // 2 + 1 + 1 + 4

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// WriteMessage writes a framed, gob-encoded message.
func WriteMessage(w io.Writer, msgType byte, data any) error {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	buf.Write(make([]byte, HeaderSize))
	if data != nil {
		if err := gob.NewEncoder(buf).Encode(data); err != nil {
			return fmt.Errorf("gob encode: %w", err)
		}
	}

	body := buf.Len() - HeaderSize
	if body > MaxMessageSize {
		return fmt.Errorf("message too large: %d > %d", body, MaxMessageSize)
	}

	frame := buf.Bytes()
	binary.LittleEndian.PutUint16(frame[0:2], ProtocolVersion)
	frame[2] = msgType
	frame[3] = 0
	binary.LittleEndian.PutUint32(frame[4:8], uint32(body))

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage reads a framed message from the connection
func ReadMessage(r io.Reader) (byte, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	header := Header{
		Version: binary.LittleEndian.Uint16(headerBuf[0:2]),
		Type:    headerBuf[2],
		Length:  binary.LittleEndian.Uint32(headerBuf[4:8]),
	}

	if header.Version != ProtocolVersion {
		return 0, nil, fmt.Errorf("version mismatch: got %d, want %d", header.Version, ProtocolVersion)
	}
	if header.Length > MaxMessageSize {
		return 0, nil, fmt.Errorf("message too large: %d > %d", header.Length, MaxMessageSize)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, fmt.Errorf("read body: %w", err)
		}
	}

	return header.Type, body, nil
}

// DecodeSnapshot decodes a snapshot from gob bytes
func DecodeSnapshot(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode snapshot: %w", err)
	}
	return &msg, nil
}

// DecodeHello decodes a hello message from gob bytes
func DecodeHello(data []byte) (*HelloMessage, error) {
	var msg HelloMessage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return nil, fmt.Errorf("gob decode hello: %w", err)
	}
	return &msg, nil
}

// CleanupSocket removes the socket file if it exists
func CleanupSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	}
	return nil
}
