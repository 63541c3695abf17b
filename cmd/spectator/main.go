// =============================================================================
// ROLLBACK DUEL - SPECTATOR
// =============================================================================
// This standalone process watches a match without joining it:
// - Receives host snapshots via IPC from the match host
// - Smooths both fighters with the snapshot interpolator
// - Logs what a renderer would draw, plus every phase change and KO
//
// USAGE:
//   1. Start the host with the feed enabled: IPC_ENABLED=true go run ./cmd/server
//   2. Then start this spectator: go run ./cmd/spectator
// =============================================================================
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rollback-duel/internal/config"
	"rollback-duel/internal/interp"
	"rollback-duel/internal/ipc"
	"rollback-duel/internal/match"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	log.Println("👀 ================================")
	log.Println("👀  ROLLBACK DUEL - SPECTATOR")
	log.Println("👀 ================================")

	appConfig := config.Load()
	socketPath := appConfig.IPC.SocketPath
	clientCfg := appConfig.Client

	log.Printf("📡 IPC socket: %s", ipc.GetPlatformAddress(socketPath))
	log.Printf("🎞️ Render: %d FPS, %.0fms behind the host", clientCfg.FrameRate, clientCfg.InterpDelayMs)

	start := time.Now()
	nowMs := func() float64 { return float64(time.Since(start).Microseconds()) / 1000 }

	smoother := interp.New(clientCfg.InterpDelayMs)
	subscriber := ipc.NewSubscriber(socketPath)

	subscriber.OnConnect(func() {
		log.Println("✅ Connected to match host")
	})
	subscriber.OnDisconnect(func() {
		log.Println("🔌 Disconnected from match host, retrying...")
		smoother.ClearAll()
	})
	subscriber.OnSnapshot(func(msg *ipc.SnapshotMessage) {
		at := nowMs()
		if ev := msg.Event; ev != nil {
			logEvent(msg)
			// Fighters respawn when play resumes; don't blend across it.
			if match.EventType(ev.Type) == match.EventTypePhase && match.Phase(ev.Phase) == match.PhasePlay {
				smoother.ClearAll()
			}
		}
		for _, p := range msg.Players {
			smoother.Ingest(p.ID, interp.Sample{
				X:      p.X,
				Y:      p.Y,
				Facing: p.Facing,
				HP:     p.HP,
				HasHP:  true,
			}, at)
		}
	})

	if err := subscriber.Start(); err != nil {
		log.Fatalf("❌ Failed to start IPC subscriber: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if clientCfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(clientCfg.Duration)*time.Second)
		defer cancel()
	}

	// Wait for the match description
	log.Println("⏳ Waiting for match host...")
	hello := subscriber.WaitForHello(30 * time.Second)
	if hello == nil {
		log.Println("⚠️ No match host yet (will keep retrying)")
		log.Println("💡 Start the host with IPC_ENABLED=true go run ./cmd/server")
	}

	log.Println("👀 Spectator ready! Press Ctrl+C to stop.")

	frameRate := clientCfg.FrameRate
	if frameRate <= 0 {
		frameRate = config.DefaultClient().FrameRate
	}
	render := time.NewTicker(time.Second / time.Duration(frameRate))
	defer render.Stop()
	stats := time.NewTicker(30 * time.Second)
	defer stats.Stop()

	var frames uint64
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-render.C:
			frames++
			if frames%uint64(frameRate) != 0 {
				continue
			}
			if hello == nil {
				hello = subscriber.GetHello()
			}
			if hello == nil {
				continue
			}
			logFrame(smoother, hello.Players, nowMs(), subscriber.GetLatestSnapshot())
		case <-stats.C:
			received, reconnects, errs := subscriber.GetStats()
			log.Printf("📊 IPC: snapshots=%d, reconnects=%d, errors=%d, connected=%v",
				received, reconnects, errs, subscriber.IsConnected())
		}
	}

	log.Println("🛑 Shutting down spectator...")
	subscriber.Stop()
	log.Println("👋 Goodbye!")
}

// logFrame prints the interpolated view of both fighters.
func logFrame(smoother *interp.Interpolator, players [2]string, nowMs float64, latest *ipc.SnapshotMessage) {
	if latest == nil {
		return
	}
	a, okA := smoother.Interpolate(players[0], nowMs)
	b, okB := smoother.Interpolate(players[1], nowMs)
	if !okA || !okB {
		return
	}
	log.Printf("🎥 tick %d %s | %s x=%.0f y=%.0f hp=%d | %s x=%.0f y=%.0f hp=%d | stocks %v",
		latest.Tick, match.Phase(latest.Phase),
		players[0], a.X, a.Y, a.HP,
		players[1], b.X, b.Y, b.HP,
		latest.Stocks)
}

func logEvent(msg *ipc.SnapshotMessage) {
	ev := msg.Event
	switch match.EventType(ev.Type) {
	case match.EventTypeKO:
		if ev.Double {
			log.Printf("💥 Double KO at tick %d! stocks %v", ev.Tick, msg.Stocks)
		} else {
			log.Printf("💥 %s KO'd %s at tick %d! stocks %v", ev.Winner, ev.Loser, ev.Tick, msg.Stocks)
		}
		if len(ev.Eliminated) > 0 {
			log.Printf("🏆 Eliminated: %v", ev.Eliminated)
		}
	case match.EventTypePhase:
		log.Printf("🔔 Phase %s at tick %d", match.Phase(ev.Phase), ev.Tick)
	}
}
